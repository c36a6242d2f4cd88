package handler

import (
	"context"
	"net/http"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/infra/observability"
	"github.com/boddenberg/bankcards-api/internal/service"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Card administration: /api/admin/cards
// ============================================================

func createCardHandler(cardSvc *service.CardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/admin/cards/{userId}")
		defer span.End()

		userID, err := uuidParam(r, "userId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var req domain.CreateCardRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		card, err := cardSvc.CreateCard(ctx, userID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, card)
	}
}

func activateCardHandler(cardSvc *service.CardService, logger *zap.Logger) http.HandlerFunc {
	return cardStatusHandler("PATCH /api/admin/cards/{id}/active", cardSvc.Activate, logger)
}

func blockCardHandler(cardSvc *service.CardService, logger *zap.Logger) http.HandlerFunc {
	return cardStatusHandler("PATCH /api/admin/cards/{id}/block", cardSvc.Block, logger)
}

func cardStatusHandler(route string, apply func(ctx context.Context, id uuid.UUID) (*domain.Card, error), logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), route)
		defer span.End()

		cardID, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("card.id", cardID.String()))

		card, err := apply(ctx, cardID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, card)
	}
}

func deleteCardHandler(cardSvc *service.CardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/admin/cards/{id}")
		defer span.End()

		cardID, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := cardSvc.DeleteCard(ctx, cardID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listCardsHandler(cardSvc *service.CardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/admin/cards")
		defer span.End()

		resp, err := cardSvc.ListCards(ctx, parsePage(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func listBlockRequestsHandler(cardSvc *service.CardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/admin/block-requests")
		defer span.End()

		resp, err := cardSvc.ListBlockRequests(ctx, parsePage(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func statsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}

// ============================================================
// User administration: /api/admin/users
// ============================================================

func createUserHandler(userSvc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/admin/users")
		defer span.End()

		var req domain.UserRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		user, err := userSvc.CreateUser(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, user)
	}
}

func updateUserHandler(userSvc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /api/admin/users/{id}")
		defer span.End()

		userID, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var req domain.UserPatchRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		user, err := userSvc.UpdateUser(ctx, userID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, user)
	}
}

func deleteUserHandler(userSvc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/admin/users/{id}")
		defer span.End()

		userID, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := userSvc.DeleteUser(ctx, userID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getUserHandler(userSvc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/admin/users/{id}")
		defer span.End()

		userID, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		user, err := userSvc.GetUser(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, user)
	}
}

func listUsersHandler(userSvc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/admin/users")
		defer span.End()

		users, err := userSvc.ListUsers(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if users == nil {
			users = []domain.User{}
		}

		writeJSON(w, http.StatusOK, users)
	}
}
