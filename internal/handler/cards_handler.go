package handler

import (
	"net/http"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Own cards: /api/cards
// ============================================================

func listOwnCardsHandler(cardSvc *service.CardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/cards")
		defer span.End()

		p := PrincipalFromContext(ctx)
		resp, err := cardSvc.ListOwnCards(ctx, p.Username, parsePage(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func filterOwnCardsHandler(cardSvc *service.CardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/cards/filter")
		defer span.End()

		var filter domain.CardFilter
		if err := decodeBody(r, &filter); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p := PrincipalFromContext(ctx)
		resp, err := cardSvc.FilterOwnCards(ctx, p.Username, filter, parsePage(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func transferHandler(cardSvc *service.CardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/cards")
		defer span.End()

		var req domain.TransferRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p := PrincipalFromContext(ctx)
		transfer, err := cardSvc.Transfer(ctx, p.Username, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, transfer)
	}
}

func listOwnTransfersHandler(cardSvc *service.CardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/cards/transfers")
		defer span.End()

		p := PrincipalFromContext(ctx)
		resp, err := cardSvc.ListOwnTransfers(ctx, p.Username, parsePage(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getBalanceHandler(cardSvc *service.CardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/cards/{id}/balance")
		defer span.End()

		cardID, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("card.id", cardID.String()))

		p := PrincipalFromContext(ctx)
		resp, err := cardSvc.GetBalance(ctx, cardID, p.Username)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func requestBlockHandler(cardSvc *service.CardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/cards/{id}/block-request")
		defer span.End()

		cardID, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("card.id", cardID.String()))

		p := PrincipalFromContext(ctx)
		br, err := cardSvc.RequestBlock(ctx, p.Username, cardID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, br)
	}
}
