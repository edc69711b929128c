//go:build !sqlite
// +build !sqlite

package seen

import (
	"errors"

	logx "cvewatch/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite seen store not built: build with -tags sqlite")
}
