package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gis-compliance/internal/arcgis"
	"github.com/sells-group/gis-compliance/internal/area"
	"github.com/sells-group/gis-compliance/internal/config"
	"github.com/sells-group/gis-compliance/internal/pipeline"
	"github.com/sells-group/gis-compliance/internal/resilience"
	"github.com/sells-group/gis-compliance/internal/session"
)

// initClient builds the feature service client from cfg.Service.
func initClient() (*arcgis.Client, error) {
	return arcgis.NewClient(cfg.Service.URL,
		arcgis.WithUserAgent(cfg.Service.UserAgent),
		arcgis.WithRequestTimeout(time.Duration(cfg.Service.TimeoutSecs)*time.Second),
	)
}

// initProjector resolves the equal-area system, preferring a flag value.
func initProjector(epsg int) (*area.AlbersProjector, error) {
	if epsg == 0 {
		epsg = cfg.Compliance.EPSG
	}
	return area.ProjectorForEPSG(epsg)
}

// initStore opens the session store selected by cfg.Store.Driver and
// prepares its schema.
func initStore(ctx context.Context) (session.Store, error) {
	sc := cfg.Store
	switch sc.Driver {
	case config.DriverFile:
		return session.NewFileStore(sc.Dir)
	case config.DriverSQLite:
		st, err := session.NewSQLite(sc.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	case config.DriverPostgres:
		st, err := session.NewPostgres(ctx, sc.DatabaseURL, &session.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	case config.DriverRedis:
		return session.NewRedis(ctx, sc.RedisAddr,
			time.Duration(sc.RedisTTLHours)*time.Hour,
			session.WithRedisPassword(sc.RedisPassword),
			session.WithRedisDB(sc.RedisDB),
		)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// auditEnv holds what the audit and serve commands share.
type auditEnv struct {
	Auditor  *pipeline.Auditor
	Sessions session.Store
}

func (e *auditEnv) Close() {
	if e.Sessions != nil {
		_ = e.Sessions.Close()
	}
}

// initAuditor wires client, projector, store and retry policy. Sessions is
// opened only when withStore is set.
func initAuditor(ctx context.Context, epsg int, withStore bool) (*auditEnv, error) {
	client, err := initClient()
	if err != nil {
		return nil, err
	}
	p, err := initProjector(epsg)
	if err != nil {
		return nil, err
	}

	env := &auditEnv{
		Auditor: &pipeline.Auditor{
			Fetcher:   client,
			Projector: p,
			Retry:     resilience.FromAttempts(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs),
			Timeout:   time.Duration(cfg.Service.TimeoutSecs) * time.Second,
		},
	}
	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "open session store")
		}
		env.Sessions = st
		env.Auditor.Sessions = st
	}
	return env, nil
}
