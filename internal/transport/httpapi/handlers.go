package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/marketplace"
)

type createListingRequest struct {
	Type   string          `json:"type"`
	Fields json.RawMessage `json:"fields"`
}

type listingResponse struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Fields    json.RawMessage `json:"fields"`
	CreatedAt time.Time       `json:"created_at"`
}

type checkoutRequest struct {
	DurationInDays   int    `json:"durationInDays"`
	AdID             *int64 `json:"adId,omitempty"`
	AdDurationInDays *int   `json:"adDurationInDays,omitempty"`
	CustomerEmail    string `json:"customerEmail,omitempty"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

type orderResponse struct {
	ID             string    `json:"id"`
	ListingID      string    `json:"listing_id"`
	ListingAdID    int64     `json:"listing_ad_id,omitempty"`
	Status         string    `json:"status"`
	DurationInDays int       `json:"duration_in_days"`
	Price          int64     `json:"price"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
}

type activeOrdersResponse struct {
	ListingID string          `json:"listing_id"`
	Listing   *orderResponse  `json:"listing"`
	Ads       []orderResponse `json:"ads"`
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderUserID))
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
}

func (h *Handler) createListing(w http.ResponseWriter, r *http.Request) {
	owner := userID(r)
	if owner == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody(r, "unauthenticated", HeaderUserID+" header is required"))
		return
	}

	body, err := readBody(w, r, maxBodySize)
	if err != nil {
		writeBadRequest(w, r, "request body is too large or unreadable")
		return
	}
	var req createListingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeBadRequest(w, r, "request body must be valid JSON")
		return
	}

	listing, err := h.listings.CreateListing(r.Context(), marketplace.CreateListingRequest{
		OwnerID: owner,
		Type:    req.Type,
		Fields:  req.Fields,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	payload, err := json.Marshal(listingResponse{
		ID:        listing.ID,
		OwnerID:   listing.OwnerID,
		Type:      listing.Type,
		Status:    string(listing.Status),
		Fields:    listing.Fields,
		CreatedAt: listing.CreatedAt,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (h *Handler) checkout(kind domain.CheckoutKind) http.HandlerFunc {
	operation := "checkout:" + string(kind)

	return func(w http.ResponseWriter, r *http.Request) {
		user := userID(r)
		if user == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody(r, "unauthenticated", HeaderUserID+" header is required"))
			return
		}
		listingID := chi.URLParam(r, "listingID")

		body, err := readBody(w, r, maxBodySize)
		if err != nil {
			writeBadRequest(w, r, "request body is too large or unreadable")
			return
		}
		var req checkoutRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeBadRequest(w, r, "request body must be valid JSON")
			return
		}

		key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
		hash := idempotency.RequestHash(operation+":"+user+":"+listingID, body)

		resp, err := h.guard.Do(r.Context(), key, hash, func(ctx context.Context) idempotency.Response {
			result, err := h.listings.Checkout(ctx, marketplace.CheckoutRequest{
				Kind:             kind,
				ListingID:        listingID,
				UserID:           user,
				DurationInDays:   req.DurationInDays,
				AdID:             req.AdID,
				AdDurationInDays: req.AdDurationInDays,
				CustomerEmail:    req.CustomerEmail,
				IdempotencyKey:   key,
			})
			if err != nil {
				status, payload := errorResponse(r, h.logger, err)
				return idempotency.Response{Status: status, Body: payload}
			}
			payload, err := json.Marshal(checkoutResponse{URL: result.URL})
			if err != nil {
				status, payload := errorResponse(r, h.logger, err)
				return idempotency.Response{Status: status, Body: payload}
			}
			return idempotency.Response{Status: http.StatusOK, Body: payload}
		})
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if resp.Replayed {
			w.Header().Set(HeaderIdempotentReplay, "true")
		}
		writeJSON(w, resp.Status, resp.Body)
	}
}

func (h *Handler) activeOrders(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")
	if _, err := h.listings.GetListing(r.Context(), listingID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.listings.ActiveOrders(r.Context(), []string{listingID})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if len(result) == 0 {
		writeError(w, r, h.logger, domain.ErrListingNotFound)
		return
	}
	h.writeActiveOrders(w, r, toActiveOrdersResponse(result[0]))
}

// activeOrdersBatch отдаёт действующие заказы для ?listingId=a&listingId=b или ?listingIds=a,b.
func (h *Handler) activeOrdersBatch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ids := append([]string(nil), query["listingId"]...)
	for _, raw := range query["listingIds"] {
		ids = append(ids, strings.Split(raw, ",")...)
	}
	if len(ids) == 0 {
		writeBadRequest(w, r, "listingId query parameter is required")
		return
	}

	result, err := h.listings.ActiveOrders(r.Context(), ids)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response := make([]activeOrdersResponse, 0, len(result))
	for _, entry := range result {
		response = append(response, toActiveOrdersResponse(entry))
	}
	h.writeActiveOrders(w, r, response)
}

func (h *Handler) writeActiveOrders(w http.ResponseWriter, r *http.Request, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r, maxWebhookBodySize)
	if err != nil {
		writeBadRequest(w, r, "webhook body is too large or unreadable")
		return
	}

	outcome, err := h.webhooks.Dispatch(r.Context(), payload, r.Header.Get(HeaderStripeSignature))
	if err != nil {
		if errors.Is(err, domain.ErrWebhookSignature) {
			writeJSON(w, http.StatusBadRequest, errorBody(r, "invalid_signature", "webhook signature verification failed"))
			return
		}
		status, body := errorResponse(r, h.logger, err)
		if status < http.StatusInternalServerError && status != http.StatusConflict {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, body)
		return
	}

	body, err := json.Marshal(webhookResponse{Received: true, Outcome: string(outcome)})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func toActiveOrdersResponse(entry domain.ActiveOrders) activeOrdersResponse {
	resp := activeOrdersResponse{ListingID: entry.ListingID, Ads: make([]orderResponse, 0, len(entry.Ads))}
	if entry.Listing != nil {
		order := toOrderResponse(*entry.Listing)
		resp.Listing = &order
	}
	for _, ad := range entry.Ads {
		resp.Ads = append(resp.Ads, toOrderResponse(ad))
	}
	return resp
}

func toOrderResponse(order domain.Order) orderResponse {
	return orderResponse{
		ID:             order.ID,
		ListingID:      order.ListingID,
		ListingAdID:    order.ListingAdID,
		Status:         string(order.Status),
		DurationInDays: order.DurationInDays,
		Price:          order.Price,
		StartsAt:       order.StartsAt,
		EndsAt:         order.EndsAt,
	}
}
