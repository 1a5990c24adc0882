package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_jobs_total",
			Help: "Total campaign jobs attempted, by outcome",
		},
		[]string{"outcome"},
	)

	NoInstanceAvailable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_no_instance_available_total",
			Help: "Jobs failed because no instance was selectable",
		},
	)

	CampaignsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaigns_finished_total",
			Help: "Campaigns that reached a terminal status",
		},
		[]string{"status"},
	)

	InstanceSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instance_selections_total",
			Help: "Instances handed out by the balancer, by strategy",
		},
		[]string{"strategy"},
	)

	InstancesBlocked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "instances_blocked_total",
			Help: "Instances deactivated after a disconnect signal",
		},
	)

	GatewayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of add-participant gateway calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	AdmissionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_rejections_total",
			Help: "Requests rejected by quota or instance cap",
		},
		[]string{"reason"},
	)
)

func Init() {
	prometheus.MustRegister(Jobs)
	prometheus.MustRegister(NoInstanceAvailable)
	prometheus.MustRegister(CampaignsFinished)
	prometheus.MustRegister(InstanceSelections)
	prometheus.MustRegister(InstancesBlocked)
	prometheus.MustRegister(GatewayLatency)
	prometheus.MustRegister(AdmissionRejections)
}
