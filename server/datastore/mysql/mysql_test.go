package mysql

import (
	"testing"

	"github.com/loomhq/loom/server/config"
	"github.com/stretchr/testify/require"
)

func TestDriverConfig(t *testing.T) {
	cfg := config.MysqlConfig{
		Protocol: "tcp",
		Address:  "db:3306",
		Username: "loom",
		Password: "insecure",
		Database: "loom",
	}

	driverCfg := newDriverConfig(cfg)

	require.Equal(t, "db:3306", driverCfg.Addr)
	require.True(t, driverCfg.ParseTime)

	// the lease extend UPDATE must succeed even when it changes no columns,
	// so matched rows, not changed rows
	require.True(t, driverCfg.ClientFoundRows)
	require.Contains(t, driverCfg.FormatDSN(), "clientFoundRows=true")
}
