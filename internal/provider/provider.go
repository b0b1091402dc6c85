// Package provider maps a plan provider to its database gateway.
package provider

import (
	"go.uber.org/zap"

	"github.com/dbup-tool/dbup/internal/database"
	"github.com/dbup-tool/dbup/internal/database/mysql"
	"github.com/dbup-tool/dbup/internal/database/postgres"
	"github.com/dbup-tool/dbup/internal/database/sqlite"
	"github.com/dbup-tool/dbup/internal/database/sqlserver"
	"github.com/dbup-tool/dbup/internal/errors"
	"github.com/dbup-tool/dbup/internal/plan"
)

// Constructor builds a gateway for one provider.
type Constructor func(logger *zap.SugaredLogger) database.Gateway

var gateways = map[plan.Provider]Constructor{
	plan.ProviderSQLServer:  func(l *zap.SugaredLogger) database.Gateway { return sqlserver.New(l) },
	plan.ProviderPostgreSQL: func(l *zap.SugaredLogger) database.Gateway { return postgres.New(l) },
	plan.ProviderMySQL:      func(l *zap.SugaredLogger) database.Gateway { return mysql.New(l) },
	plan.ProviderSQLite:     func(l *zap.SugaredLogger) database.Gateway { return sqlite.New(l) },
}

// Gateway returns the gateway for p.
func Gateway(p plan.Provider, logger *zap.SugaredLogger) (database.Gateway, error) {
	ctor, ok := gateways[p]
	if !ok {
		return nil, errors.Mark(errors.Newf("no gateway for provider %q", p), errors.ErrInvalidPlan)
	}
	return ctor(logger), nil
}
