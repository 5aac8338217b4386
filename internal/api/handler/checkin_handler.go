package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

const streamHeartbeat = 25 * time.Second

type CheckInHandler struct {
	ledger   ports.CheckInLedger
	resolver ports.TokenResolver
	feed     ports.CheckInFeed
	clock    func() time.Time
	log      zerolog.Logger
}

func NewCheckInHandler(ledger ports.CheckInLedger, resolver ports.TokenResolver, feed ports.CheckInFeed, log zerolog.Logger) *CheckInHandler {
	return &CheckInHandler{ledger: ledger, resolver: resolver, feed: feed, clock: time.Now, log: log}
}

// Submit records a check-in for the caller. Without token_id the resolver
// picks the caller's most recently used token. A repeat within the dedup
// window answers 200 with the original event instead of 201.
//
// @Summary      Check in
// @Tags         checkins
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      submitCheckInRequest  true  "Check-in"
// @Success      201   {object}  checkInResponse
// @Success      200   {object}  checkInResponse  "replayed duplicate"
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /v1/checkins [post]
func (h *CheckInHandler) Submit(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	var req submitCheckInRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	token, err := h.resolver.ResolveActiveToken(ctx, claims.UserID, req.TokenID)
	if err != nil {
		return err
	}

	method := domain.CheckInMethod(req.Method)
	if method == "" {
		method = token.Kind.CheckInMethod()
	}
	var occurredAt time.Time
	if req.OccurredAt > 0 {
		occurredAt = time.UnixMilli(req.OccurredAt)
	}

	res, err := h.ledger.SubmitCheckIn(ctx, ports.SubmitCheckInInput{
		OwnerID:    claims.UserID,
		TokenID:    token.TokenID,
		Subject:    req.Subject,
		Room:       req.Room,
		Method:     method,
		OccurredAt: occurredAt,
	})
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, checkInResponse{Event: newEventView(res.Event), Replayed: res.Replayed})
}

// History pages through the caller's check-ins, newest first.
//
// @Summary      Check-in history
// @Tags         checkins
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query     int     false  "Page size (default 20, max 100)"
// @Param        cursor  query     string  false  "next_cursor from the previous page"
// @Success      200     {object}  historyResponse
// @Failure      400     {object}  errorResponse
// @Router       /v1/checkins [get]
func (h *CheckInHandler) History(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}

	in := ports.HistoryInput{OwnerID: claims.UserID}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		in.Limit = limit
	}
	if raw := c.QueryParam("cursor"); raw != "" {
		cur, err := decodeCursor(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cursor")
		}
		in.Before, in.BeforeSeq = cur.Before, cur.BeforeSeq
	}

	res, err := h.ledger.History(c.Request().Context(), in)
	if err != nil {
		return err
	}

	resp := historyResponse{Items: make([]*eventView, 0, len(res.Items)), Limit: res.Limit}
	for _, e := range res.Items {
		resp.Items = append(resp.Items, newEventView(e))
	}
	if res.Next != nil {
		resp.NextCursor = encodeCursor(*res.Next)
	}
	return c.JSON(http.StatusOK, resp)
}

// Summary backs the home screen.
//
// @Summary      Check-in summary
// @Tags         checkins
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  summaryResponse
// @Router       /v1/checkins/summary [get]
func (h *CheckInHandler) Summary(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	s, err := h.ledger.Summary(c.Request().Context(), claims.UserID, h.clock())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summaryResponse{Total: s.Total, Today: s.Today, Last: newEventView(s.Last)})
}

// Stream pushes the caller's new check-ins as server-sent events.
//
// @Summary      Live check-ins
// @Tags         checkins
// @Produce      text/event-stream
// @Security     BearerAuth
// @Success      200
// @Failure      503  {object}  errorResponse
// @Router       /v1/checkins/stream [get]
func (h *CheckInHandler) Stream(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	if h.feed == nil {
		return domain.ErrStoreUnavailable
	}

	ctx := c.Request().Context()
	events, cancel, err := h.feed.Subscribe(ctx, claims.UserID)
	if err != nil {
		return fmt.Errorf("stream: %w: %v", domain.ErrStoreUnavailable, err)
	}
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(newEventView(e))
			if err != nil {
				h.log.Error().Err(err).Str("event_id", e.EventID).Msg("encode stream event")
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: checkin\ndata: %s\n\n", e.EventID, payload); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// encodeCursor renders "<occurred_at_ms>.<seq>".
func encodeCursor(c ports.HistoryCursor) string {
	return strconv.FormatInt(c.Before.UnixMilli(), 10) + "." + strconv.FormatInt(c.BeforeSeq, 10)
}

func decodeCursor(raw string) (ports.HistoryCursor, error) {
	msPart, seqPart, ok := strings.Cut(raw, ".")
	if !ok {
		return ports.HistoryCursor{}, fmt.Errorf("cursor %q: missing separator", raw)
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil {
		return ports.HistoryCursor{}, fmt.Errorf("cursor %q: %w", raw, err)
	}
	seq, err := strconv.ParseInt(seqPart, 10, 64)
	if err != nil {
		return ports.HistoryCursor{}, fmt.Errorf("cursor %q: %w", raw, err)
	}
	return ports.HistoryCursor{Before: time.UnixMilli(ms).UTC(), BeforeSeq: seq}, nil
}
