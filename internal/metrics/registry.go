package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "openpassport"

// Registry is the package-local Prometheus registry every metric in this
// package registers against, rather than the global default registry, so
// a process embedding this package can expose its own /metrics endpoint
// without picking up unrelated collectors.
var Registry = prometheus.NewRegistry()
