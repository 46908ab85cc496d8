package license

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"killswitch/internal/metrics"
)

// Rejection reasons, in the order the check chain evaluates them. The first
// failing check determines the reason; later checks are never evaluated.
const (
	ReasonInvalidClient   = "InvalidClient"
	ReasonInvalidKey      = "InvalidKey"
	ReasonServiceNotFound = "ServiceNotFound"
	ReasonLicenseNotFound = "LicenseNotFound"
	ReasonLicenseInactive = "LicenseInactive"
	ReasonLicenseExpired  = "LicenseExpired"
	ReasonAccessDenied    = "AccessDenied"
)

// Rejection describes why a validation request was refused. Message is the
// short machine-facing response body; Audit is the longer human-readable
// string recorded in the request log.
type Rejection struct {
	Reason  string
	Status  int
	Message string
	Audit   string
}

// ValidatedLicense is the successful validation response: the license view
// enriched with the resolved service's client identifier, and grace_period
// replaced by the absolute boundary until which the caller may operate
// before re-validating.
type ValidatedLicense struct {
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	ServiceID      int64     `json:"service_id"`
	GracePeriod    time.Time `json:"grace_period"`
	Active         bool      `json:"active"`
	ExpirationDate time.Time `json:"expiration_date"`
	AutoRenew      bool      `json:"auto_renew"`
	Client         string    `json:"client"`
}

// AuditSink records validation outcomes. Logging is fire-and-forget relative
// to the validation response.
type AuditSink interface {
	Insert(ctx context.Context, ip, client string, valid bool, reason, endpoint, method string) error
}

const (
	auditEndpoint = "/license/validate"
	auditTimeout  = 5 * time.Second
)

// Validator answers validation requests from the current snapshot only; it
// never reads the durable store.
type Validator struct {
	cache   *Cache
	audit   AuditSink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewValidator(cache *Cache, audit AuditSink, m *metrics.Metrics, logger *slog.Logger) *Validator {
	return &Validator{
		cache:   cache,
		audit:   audit,
		metrics: m,
		logger:  logger.With(slog.String("component", "license_validator")),
	}
}

// Validate runs the ordered check chain for the given client identifier and
// license key at the given instant. Every outcome, success or rejection, is
// reported to the audit sink with the originating IP.
func (v *Validator) Validate(clientID, key string, now time.Time, ip string) (*ValidatedLicense, *Rejection) {
	snap := v.cache.Current()

	if rej := v.check(snap, clientID, key, now); rej != nil {
		v.record(ip, clientID, false, rej.Audit, rej.Reason)
		return nil, rej
	}

	service := snap.FindServiceByClient(clientID)
	lic := snap.FindLicenseByKey(key)
	result := &ValidatedLicense{
		Key:            lic.Key,
		Name:           lic.Name,
		ServiceID:      lic.ServiceID,
		GracePeriod:    now.Add(time.Duration(lic.GracePeriod) * time.Millisecond),
		Active:         lic.Active,
		ExpirationDate: lic.ExpirationDate,
		AutoRenew:      lic.AutoRenew,
		Client:         service.Client,
	}

	v.record(ip, clientID, true, "", "valid")
	return result, nil
}

// check evaluates the chain in its fixed order and returns the first failure.
func (v *Validator) check(snap *Snapshot, clientID, key string, now time.Time) *Rejection {
	if clientID == "" || snap.FindServiceByClient(clientID) == nil {
		return &Rejection{
			Reason:  ReasonInvalidClient,
			Status:  http.StatusBadRequest,
			Message: "Invalid request",
			Audit:   "Client header is missing or is invalid",
		}
	}

	if !isUUIDv4(key) {
		return &Rejection{
			Reason:  ReasonInvalidKey,
			Status:  http.StatusBadRequest,
			Message: "A valid service key is required",
			Audit:   "Invalid service key",
		}
	}

	service := snap.FindServiceByClient(clientID)
	if service == nil {
		return &Rejection{
			Reason:  ReasonServiceNotFound,
			Status:  http.StatusNotFound,
			Message: "Service not found",
			Audit:   "Service not found: Key: " + key,
		}
	}

	lic := snap.FindLicenseByKey(key)
	if lic == nil {
		return &Rejection{
			Reason:  ReasonLicenseNotFound,
			Status:  http.StatusNotFound,
			Message: "License not found",
			Audit:   "License not found: Key: " + key,
		}
	}

	if !lic.Active {
		return &Rejection{
			Reason:  ReasonLicenseInactive,
			Status:  http.StatusForbidden,
			Message: "License is inactive",
			Audit:   "License is inactive: Key: " + key,
		}
	}

	if !now.Before(lic.ExpirationDate) {
		return &Rejection{
			Reason:  ReasonLicenseExpired,
			Status:  http.StatusForbidden,
			Message: "License has expired",
			Audit:   "License has expired: Key: " + key,
		}
	}

	// Defense-in-depth re-check against the service resolved above. Removing
	// it would change the observable rejection ordering.
	if clientID != service.Client {
		return &Rejection{
			Reason:  ReasonAccessDenied,
			Status:  http.StatusForbidden,
			Message: "Access Denied",
			Audit:   fmt.Sprintf("Client header does not match service client: %s. Key: %s", service.Name, key),
		}
	}

	return nil
}

// record reports the outcome to the audit sink and metrics. The sink write
// runs detached from the request; a failure to log never blocks or fails the
// validation response.
func (v *Validator) record(ip, client string, valid bool, auditReason, outcome string) {
	if v.metrics != nil {
		v.metrics.ValidationTotal.WithLabelValues(outcome).Inc()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := v.audit.Insert(ctx, ip, client, valid, auditReason, auditEndpoint, http.MethodPost); err != nil {
			v.logger.Error("failed to write request log",
				slog.String("ip", ip),
				slog.String("error", err.Error()))
		}
	}()
}

func isUUIDv4(key string) bool {
	id, err := uuid.Parse(key)
	if err != nil {
		return false
	}
	return id.Version() == 4
}
