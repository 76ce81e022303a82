package arcgis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcgis_pages_fetched_total",
		Help: "Feature service result pages fetched.",
	})

	featuresFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcgis_features_fetched_total",
		Help: "Features received from feature service pages.",
	})

	fetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcgis_fetch_errors_total",
			Help: "Aborted feature service queries by error kind.",
		},
		[]string{"kind"},
	)
)
