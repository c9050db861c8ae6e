/*
Package metrics provides Prometheus metrics collection and exposition for cellar.

The metrics package defines and registers all cellar metrics using the Prometheus
client library, providing observability into blob store throughput, ref store
operation outcomes (including OCC conflicts), subscription fan-out, and the
Raft ref-cluster tier. Metrics are exposed via an HTTP endpoint for scraping
by Prometheus servers.

# Metrics Catalog

Blob store:

  - cellar_blob_puts_total{tier}
  - cellar_blob_gets_total{tier, result}       result = hit|miss
  - cellar_blob_deletes_total{tier}
  - cellar_blob_operation_duration_seconds{tier, op}
  - cellar_blob_multi_divergence_total{present_tier, missing_tier}

Value store (codec + normalize):

  - cellar_value_put_duration_seconds
  - cellar_value_get_duration_seconds
  - cellar_value_fragments_written_total

Ref store:

  - cellar_ref_operations_total{backend, op, result}
  - cellar_ref_operation_duration_seconds{backend, op}
  - cellar_ref_occ_conflicts_total{backend}
  - cellar_ref_subscriptions_active
  - cellar_ref_subscription_deliveries_total{backend}

Raft ref cluster tier (refstore.RaftStore only):

  - cellar_raft_is_leader
  - cellar_raft_peers_total
  - cellar_raft_apply_duration_seconds

# Usage

Call-site metrics (counters, histograms, per-operation labels) are
registered here but not updated by cellar's store packages; a caller
records them inline around the operation:

	timer := metrics.NewTimer()
	fp, err := blobs.Put(ctx, data)
	timer.ObserveDurationVec(metrics.BlobOperationDuration, tier, "put")
	metrics.BlobPutsTotal.WithLabelValues(tier).Inc()

Gauge-shaped state that nothing calls into directly (active
subscription count, current Raft leadership and peer count) is sampled
periodically by a Collector wrapping the RefStore backend:

	collector := metrics.NewCollector(raftStore)
	collector.Start(15 * time.Second)
	defer collector.Stop()

Exposing the endpoint:

	http.Handle("/metrics", metrics.Handler())

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
