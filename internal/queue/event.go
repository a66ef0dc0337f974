// Package queue defines the issuance events exchanged over RabbitMQ, the
// publisher used after a successful commit, and the audit consumer.
package queue

// IssuedQueueName is the durable queue issuance events are routed to.
const IssuedQueueName = "certificates.issued"

// IssuedCertificate is one certificate inside an issuance event.
type IssuedCertificate struct {
	ID               int64  `json:"id"`
	VerificationCode string `json:"codigo_verificacion"`
	DNI              string `json:"dni"`
	FullName         string `json:"nombre_completo"`
}

// CertificatesIssuedEvent is published after certificates are committed,
// either by a single issuance (Source "single") or by a batch upload
// (Source "batch", with UploadID set). Consumers get enough data to log
// or notify without querying the store.
type CertificatesIssuedEvent struct {
	Source       string              `json:"source"`
	UploadID     int64               `json:"upload_id,omitempty"`
	EventName    string              `json:"nombre_evento,omitempty"`
	DesignID     int64               `json:"diseno_id,omitempty"`
	Certificates []IssuedCertificate `json:"certificados"`
	Failed       int                 `json:"fallidos"`
	IssuedAt     string              `json:"issued_at"`
}
