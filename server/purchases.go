package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"covault/models"
	"covault/observability/logging"
	"covault/observability/metrics"
)

// CreateService registers a provider's standing cosigning offer.
func (s *Server) CreateService(w http.ResponseWriter, r *http.Request) {
	providerID, err := callerID(r)
	if err != nil {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title             string `json:"title"`
		SetupFee          int64  `json:"setup_fee"`
		PerSignatureFee   int64  `json:"per_signature_fee"`
		MinTimeDelayHours int    `json:"min_time_delay_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.SetupFee < 0 || req.PerSignatureFee <= 0 {
		http.Error(w, "fees must be positive", http.StatusBadRequest)
		return
	}
	if req.MinTimeDelayHours < 0 {
		http.Error(w, "time delay must not be negative", http.StatusBadRequest)
		return
	}

	now := s.Now()
	service := models.Service{
		ID:                uuid.New(),
		ProviderID:        providerID,
		Title:             req.Title,
		SetupFee:          req.SetupFee,
		PerSignatureFee:   req.PerSignatureFee,
		MinTimeDelayHours: req.MinTimeDelayHours,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.DB.Create(&service).Error; err != nil {
		http.Error(w, "failed to create service", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusCreated, service)
}

// PurchaseService creates a pending ServicePurchase and the setup-fee
// invoice. The purchase stays inactive until the payment settles; a service
// is sold to at most one client at a time.
func (s *Server) PurchaseService(w http.ResponseWriter, r *http.Request) {
	clientID, err := callerID(r)
	if err != nil {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}
	serviceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid service id", http.StatusBadRequest)
		return
	}

	var purchase models.ServicePurchase
	var invoiceRequest string
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var service models.Service
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&service, "id = ?", serviceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if service.IsPurchased {
			return ErrAlreadyPurchased
		}

		memo := fmt.Sprintf("setup fee %s for %s", btcutil.Amount(service.SetupFee), service.Title)
		invoice, err := s.Payments.CreateInvoice(r.Context(), service.SetupFee, memo)
		if err != nil {
			return fmt.Errorf("create setup invoice: %w", err)
		}
		metrics.Cosign().ObserveInvoiceIssued("setup")

		now := s.Now()
		purchase = models.ServicePurchase{
			ID:          uuid.New(),
			ClientID:    clientID,
			ServiceID:   service.ID,
			PaymentHash: invoice.PaymentHash,
			IsActive:    false,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		invoiceRequest = invoice.PaymentRequest
		if err := tx.Create(&purchase).Error; err != nil {
			return err
		}
		return s.appendEvent(tx, nil, clientID, "purchase.created",
			fmt.Sprintf("service=%s fee=%d", service.ID, service.SetupFee))
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.Log.Info("service purchase pending",
		"purchase_id", purchase.ID, "service_id", serviceID,
		logging.MaskField("payment_request", invoiceRequest))
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"purchase":        purchase,
		"payment_request": invoiceRequest,
		"payment_hash":    purchase.PaymentHash,
	})
}

// ActivatePurchase polls the payment collaborator for settlement of the
// setup invoice. A not-yet-settled payment is a normal retryable outcome
// reported as 202 Accepted, never an error.
func (s *Server) ActivatePurchase(w http.ResponseWriter, r *http.Request) {
	clientID, err := callerID(r)
	if err != nil {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}
	purchaseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid purchase id", http.StatusBadRequest)
		return
	}

	var purchase models.ServicePurchase
	if err := s.DB.First(&purchase, "id = ?", purchaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, ErrNotFound)
			return
		}
		http.Error(w, "failed to load purchase", http.StatusInternalServerError)
		return
	}
	if purchase.ClientID != clientID {
		writeError(w, ErrUnauthorized)
		return
	}
	if purchase.IsActive {
		s.writeJSON(w, http.StatusOK, purchase)
		return
	}

	paid, err := s.Payments.CheckPaymentStatus(r.Context(), purchase.PaymentHash)
	if err != nil {
		http.Error(w, "failed to check payment status", http.StatusBadGateway)
		return
	}
	if !paid {
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "awaiting_payment"})
		return
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var locked models.ServicePurchase
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, "id = ?", purchaseID).Error; err != nil {
			return err
		}
		if !locked.IsActive {
			locked.IsActive = true
			locked.UpdatedAt = s.Now()
			if err := tx.Save(&locked).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Service{}).Where("id = ?", locked.ServiceID).
				Update("is_purchased", true).Error; err != nil {
				return err
			}
		}
		purchase = locked
		return s.appendEvent(tx, nil, clientID, "purchase.activated",
			fmt.Sprintf("purchase=%s", locked.ID))
	})
	if err != nil {
		http.Error(w, "failed to activate purchase", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, purchase)
}

// activePurchase loads the caller's active purchase of a service, joining in
// the service row for fee and delay snapshots.
func (s *Server) activePurchase(tx *gorm.DB, clientID, serviceID uuid.UUID) (*models.ServicePurchase, *models.Service, error) {
	var purchase models.ServicePurchase
	if err := tx.First(&purchase, "client_id = ? AND service_id = ?", clientID, serviceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrServiceNotPurchased
		}
		return nil, nil, err
	}
	if !purchase.IsActive {
		return nil, nil, ErrServiceNotPurchased
	}
	var service models.Service
	if err := tx.First(&service, "id = ?", serviceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	return &purchase, &service, nil
}
