package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CosignMetrics aggregates the counters emitted at the component boundaries
// of the signature request lifecycle.
type CosignMetrics struct {
	admissionRejects *prometheus.CounterVec
	fallbackAccepts  *prometheus.CounterVec
	requestsCreated  prometheus.Counter
	requestsSigned   prometheus.Counter
	downloads        prometheus.Counter
	invoicesIssued   *prometheus.CounterVec
}

var (
	cosignOnce     sync.Once
	cosignRegistry *CosignMetrics
)

// Cosign returns the process-wide cosigning metrics registry, creating and
// registering it on first use.
func Cosign() *CosignMetrics {
	cosignOnce.Do(func() {
		cosignRegistry = &CosignMetrics{
			admissionRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cosign_psbt_admission_rejects_total",
				Help: "Count of PSBT submissions rejected at admission by reason.",
			}, []string{"reason"}),
			fallbackAccepts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cosign_psbt_fallback_accepts_total",
				Help: "Count of signed-PSBT submissions accepted via a heuristic fallback tier.",
			}, []string{"tier"}),
			requestsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cosign_signature_requests_created_total",
				Help: "Count of signature requests admitted into the PENDING state.",
			}),
			requestsSigned: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cosign_signature_requests_signed_total",
				Help: "Count of signature requests countersigned by providers.",
			}),
			downloads: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cosign_signed_psbt_downloads_total",
				Help: "Count of signed PSBT releases to clients.",
			}),
			invoicesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cosign_invoices_issued_total",
				Help: "Count of Lightning invoices requested from the payment collaborator by purpose.",
			}, []string{"purpose"}),
		}
		prometheus.MustRegister(
			cosignRegistry.admissionRejects,
			cosignRegistry.fallbackAccepts,
			cosignRegistry.requestsCreated,
			cosignRegistry.requestsSigned,
			cosignRegistry.downloads,
			cosignRegistry.invoicesIssued,
		)
	})
	return cosignRegistry
}

// ObserveAdmissionReject counts a PSBT rejected at an admission gate.
func (m *CosignMetrics) ObserveAdmissionReject(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.admissionRejects.WithLabelValues(reason).Inc()
}

// ObserveFallbackAccept counts a signed-PSBT submission accepted without a
// literal partial-signature record.
func (m *CosignMetrics) ObserveFallbackAccept(tier string) {
	if m == nil {
		return
	}
	if tier == "" {
		tier = "unknown"
	}
	m.fallbackAccepts.WithLabelValues(tier).Inc()
}

// ObserveRequestCreated counts a new PENDING signature request.
func (m *CosignMetrics) ObserveRequestCreated() {
	if m == nil {
		return
	}
	m.requestsCreated.Inc()
}

// ObserveRequestSigned counts a PENDING to SIGNED transition.
func (m *CosignMetrics) ObserveRequestSigned() {
	if m == nil {
		return
	}
	m.requestsSigned.Inc()
}

// ObserveDownload counts a signed PSBT release.
func (m *CosignMetrics) ObserveDownload() {
	if m == nil {
		return
	}
	m.downloads.Inc()
}

// ObserveInvoiceIssued counts an invoice handed out by purpose
// ("setup" or "signature").
func (m *CosignMetrics) ObserveInvoiceIssued(purpose string) {
	if m == nil {
		return
	}
	if purpose == "" {
		purpose = "unknown"
	}
	m.invoicesIssued.WithLabelValues(purpose).Inc()
}
