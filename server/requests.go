package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/btcsuite/btcutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"covault/models"
	"covault/observability/logging"
	"covault/observability/metrics"
	"covault/timelock"
)

// RequestPayment is phase one of request creation: the per-signature fee is
// invoiced before the PSBT exists. The returned payment hash is the key the
// later submission reconciles against; no request row is created yet.
func (s *Server) RequestPayment(w http.ResponseWriter, r *http.Request) {
	clientID, err := callerID(r)
	if err != nil {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}

	var req struct {
		ServiceID uuid.UUID `json:"service_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	_, service, err := s.activePurchase(s.DB, clientID, req.ServiceID)
	if err != nil {
		writeError(w, err)
		return
	}

	memo := fmt.Sprintf("signature fee %s for %s", btcutil.Amount(service.PerSignatureFee), service.Title)
	invoice, err := s.Payments.CreateInvoice(r.Context(), service.PerSignatureFee, memo)
	if err != nil {
		http.Error(w, "failed to create invoice", http.StatusBadGateway)
		return
	}
	metrics.Cosign().ObserveInvoiceIssued("signature")

	s.Log.Info("signature fee invoiced",
		"service_id", service.ID, "amount", service.PerSignatureFee,
		logging.MaskField("payment_request", invoice.PaymentRequest))
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"payment_request": invoice.PaymentRequest,
		"payment_hash":    invoice.PaymentHash,
		"expires_at":      invoice.ExpiresAt,
	})
}

// SubmitPsbt is phase two: the client uploads the unsigned PSBT together with
// the payment hash from phase one. If the payment-confirmation worker already
// created a placeholder row for this hash the upload completes it in place;
// otherwise a new row is created with the payment marked confirmed, covering
// the race where the upload arrives before confirmation is recorded. The
// upsert runs under the unique index on payment_hash so concurrent uploads
// can never mint two rows; last writer wins on the PSBT body.
func (s *Server) SubmitPsbt(w http.ResponseWriter, r *http.Request) {
	clientID, err := callerID(r)
	if err != nil {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}

	var req struct {
		ServiceID   uuid.UUID `json:"service_id"`
		Psbt        string    `json:"psbt"`
		PaymentHash string    `json:"payment_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	paymentHash := strings.TrimSpace(req.PaymentHash)
	if paymentHash == "" {
		writeError(w, ErrPaymentHashRequired)
		return
	}

	var request models.SignatureRequest
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		_, service, err := s.activePurchase(tx, clientID, req.ServiceID)
		if err != nil {
			return err
		}

		psbtHash, err := s.Validator.ValidateUnsigned(req.Psbt)
		if err != nil {
			return err
		}

		now := s.Now()
		upsert := func(existing *models.SignatureRequest) error {
			if existing.Status != "" && existing.Status != models.StatusPending {
				return ErrNotPending
			}
			existing.ClientID = clientID
			existing.ServiceID = service.ID
			existing.Psbt = req.Psbt
			existing.PsbtHash = psbtHash
			existing.SignatureFee = service.PerSignatureFee
			existing.Status = models.StatusPending
			existing.UnlocksAt = timelock.UnlockTime(now, service.MinTimeDelayHours)
			existing.UpdatedAt = now
			return tx.Save(existing).Error
		}

		var existing models.SignatureRequest
		lookupErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&existing, "payment_hash = ?", paymentHash).Error
		switch {
		case lookupErr == nil:
			if existing.ClientID != uuid.Nil && existing.ClientID != clientID {
				return ErrUnauthorized
			}
			if err := upsert(&existing); err != nil {
				return err
			}
			request = existing
		case errors.Is(lookupErr, gorm.ErrRecordNotFound):
			fresh := models.SignatureRequest{
				ID:          uuid.New(),
				ClientID:    clientID,
				ServiceID:   service.ID,
				PaymentHash: paymentHash,
				// The confirmation worker usually creates the row
				// first; reaching this path means the upload won the
				// race, so trust the invoice and mark it confirmed.
				PaymentConfirmed: true,
				CreatedAt:        now,
			}
			if err := upsert(&fresh); err != nil {
				// A concurrent upload may have claimed the unique
				// index between lookup and save; fall back to the
				// update path.
				if retryErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
					First(&existing, "payment_hash = ?", paymentHash).Error; retryErr == nil {
					if err := upsert(&existing); err != nil {
						return err
					}
					request = existing
					break
				}
				return err
			}
			request = fresh
		default:
			return lookupErr
		}

		return s.appendEvent(tx, &request.ID, clientID, "request.submitted",
			fmt.Sprintf("psbt_hash=%s fee=%d", request.PsbtHash, request.SignatureFee))
	})
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.Cosign().ObserveRequestCreated()
	s.Log.Info("signature request admitted",
		"request_id", request.ID, "psbt_hash", request.PsbtHash,
		"unlocks_at", request.UnlocksAt,
		logging.MaskField("psbt", request.Psbt))
	s.writeJSON(w, http.StatusCreated, request)
}

// SignRequest stores the provider's countersigned PSBT. Signing is not gated
// by the unlock time: the provider commits the signature immediately and only
// the release to the client waits out the delay, leaving a window to detect
// and halt fraudulent requests out-of-band.
func (s *Server) SignRequest(w http.ResponseWriter, r *http.Request) {
	providerID, err := callerID(r)
	if err != nil {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}
	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	var req struct {
		SignedPsbt string `json:"signed_psbt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	var request *models.SignatureRequest
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		request, err = lockRequest(tx, requestID)
		if err != nil {
			return err
		}
		var service models.Service
		if err := tx.First(&service, "id = ?", request.ServiceID).Error; err != nil {
			return err
		}
		if service.ProviderID != providerID {
			return ErrUnauthorized
		}
		if request.Status != models.StatusPending {
			return ErrNotPending
		}
		if err := s.Validator.ValidateSigned(req.SignedPsbt); err != nil {
			return err
		}
		if err := ValidateTransition(request.Status, models.StatusSigned); err != nil {
			return err
		}
		now := s.Now()
		request.SignedPsbt = req.SignedPsbt
		request.SignedAt = &now
		request.Status = models.StatusSigned
		request.UpdatedAt = now
		if err := tx.Save(request).Error; err != nil {
			return err
		}
		return s.appendEvent(tx, &request.ID, providerID, "request.signed", "")
	})
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.Cosign().ObserveRequestSigned()
	s.Log.Info("signature request countersigned",
		"request_id", request.ID,
		logging.MaskField("signed_psbt", request.SignedPsbt))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    request.Status,
		"signed_at": request.SignedAt,
	})
}

// DownloadRequest releases the countersigned PSBT to the owning client once
// the time delay has elapsed. The first successful download moves the request
// to COMPLETED; repeated calls return the same bytes and leave the status
// unchanged.
func (s *Server) DownloadRequest(w http.ResponseWriter, r *http.Request) {
	clientID, err := callerID(r)
	if err != nil {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}
	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	var request *models.SignatureRequest
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		request, err = lockRequest(tx, requestID)
		if err != nil {
			return err
		}
		if request.ClientID != clientID {
			return ErrUnauthorized
		}
		if request.SignedPsbt == "" {
			return ErrNotSignedYet
		}
		if !timelock.Elapsed(s.Now(), request.UnlocksAt) {
			return ErrTimeDelayNotElapsed
		}
		if request.Status == models.StatusSigned {
			if err := ValidateTransition(request.Status, models.StatusCompleted); err != nil {
				return err
			}
			request.Status = models.StatusCompleted
			request.UpdatedAt = s.Now()
			if err := tx.Save(request).Error; err != nil {
				return err
			}
			return s.appendEvent(tx, &request.ID, clientID, "request.completed", "")
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.Cosign().ObserveDownload()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"signed_psbt": request.SignedPsbt,
		"status":      request.Status,
		"signed_at":   request.SignedAt,
	})
}

// GetRequest returns the request's lifecycle view to its client or the
// provider owning the service. The signed PSBT itself is withheld from
// clients until the unlock time passes; download is the release path.
func (s *Server) GetRequest(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}
	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	var request models.SignatureRequest
	if err := s.DB.First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, ErrNotFound)
			return
		}
		http.Error(w, "failed to load request", http.StatusInternalServerError)
		return
	}

	var service models.Service
	if err := s.DB.First(&service, "id = ?", request.ServiceID).Error; err != nil {
		http.Error(w, "failed to load service", http.StatusInternalServerError)
		return
	}
	isClient := request.ClientID == caller
	isProvider := service.ProviderID == caller
	if !isClient && !isProvider {
		writeError(w, ErrUnauthorized)
		return
	}

	view := request
	if isClient && !timelock.Elapsed(s.Now(), request.UnlocksAt) {
		view.SignedPsbt = ""
	}
	s.writeJSON(w, http.StatusOK, view)
}
