package api

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/notification"
	"github.com/sigscope/sigscope/internal/session"
)

// Request bodies.
type (
	frequencyRequest struct {
		Frequency float64 `json:"frequency"`
		LNB       float64 `json:"lnb"`
	}
	gainRequest struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}
	antennaRequest struct {
		Name string `json:"name"`
	}
	bandwidthRequest struct {
		Bandwidth float64 `json:"bandwidth"`
	}
	toggleRequest struct {
		Enabled bool `json:"enabled"`
	}
	throttleRequest struct {
		Enabled bool   `json:"enabled"`
		Rate    uint32 `json:"rate"`
	}
	recordRequest struct {
		Enabled bool   `json:"enabled"`
		Dir     string `json:"dir"`
	}
	cursorRequest struct {
		LO float64 `json:"lo"`
	}
)

// bind decodes the request body into a new T.
func bind[T any](c echo.Context) (T, error) {
	var v T
	if err := c.Bind(&v); err != nil {
		return v, badRequest(err, c.Path())
	}
	return v, nil
}

func finite(name string, values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Newf("%s must be a finite number", name).
				Component("api").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	return nil
}

// reply answers a successful mutation with the session snapshot.
func (s *Server) reply(c echo.Context, code int) error {
	snap, err := s.session.Snapshot(c.Request().Context())
	if err != nil {
		return s.handleError(c, err, "Failed to read session")
	}
	return c.JSON(code, snap)
}

func (s *Server) getSession(c echo.Context) error {
	return s.reply(c, http.StatusOK)
}

func (s *Server) lifecycle(c echo.Context, op string, fn func(context.Context) error) error {
	if err := fn(c.Request().Context()); err != nil {
		return s.handleError(c, err, "Failed to "+op+" capture")
	}
	return s.reply(c, http.StatusAccepted)
}

func (s *Server) startSession(c echo.Context) error {
	return s.lifecycle(c, "start", s.session.Start)
}

func (s *Server) stopSession(c echo.Context) error {
	return s.lifecycle(c, "stop", s.session.Stop)
}

func (s *Server) restartSession(c echo.Context) error {
	return s.lifecycle(c, "restart", s.session.Restart)
}

func (s *Server) setProfile(c echo.Context) error {
	p, err := bind[analyzer.Profile](c)
	if err != nil {
		return s.handleError(c, err, "Invalid profile")
	}
	if err := s.session.SetProfile(c.Request().Context(), p); err != nil {
		return s.handleError(c, err, "Failed to set profile")
	}
	return s.reply(c, http.StatusOK)
}

func (s *Server) setFrequency(c echo.Context) error {
	req, err := bind[frequencyRequest](c)
	if err == nil {
		err = finite("frequency", req.Frequency, req.LNB)
	}
	if err != nil {
		return s.handleError(c, err, "Invalid frequency")
	}
	if err := s.session.SetFrequency(c.Request().Context(), req.Frequency, req.LNB); err != nil {
		return s.handleError(c, err, "Failed to set frequency")
	}
	return s.reply(c, http.StatusOK)
}

func (s *Server) setGain(c echo.Context) error {
	req, err := bind[gainRequest](c)
	if err == nil && req.Name == "" {
		err = badRequest(errors.NewStd("gain name is required"), "gain")
	}
	if err == nil {
		err = finite("gain", req.Value)
	}
	if err != nil {
		return s.handleError(c, err, "Invalid gain")
	}
	if err := s.session.SetGain(c.Request().Context(), req.Name, req.Value); err != nil {
		return s.handleError(c, err, "Failed to set gain")
	}
	return s.reply(c, http.StatusOK)
}

func (s *Server) setAntenna(c echo.Context) error {
	req, err := bind[antennaRequest](c)
	if err != nil {
		return s.handleError(c, err, "Invalid antenna")
	}
	if err := s.session.SetAntenna(c.Request().Context(), req.Name); err != nil {
		return s.handleError(c, err, "Failed to set antenna")
	}
	return s.reply(c, http.StatusOK)
}

func (s *Server) setSourceBandwidth(c echo.Context) error {
	req, err := bind[bandwidthRequest](c)
	if err == nil {
		err = finite("bandwidth", req.Bandwidth)
	}
	if err != nil {
		return s.handleError(c, err, "Invalid bandwidth")
	}
	if err := s.session.SetSourceBandwidth(c.Request().Context(), req.Bandwidth); err != nil {
		return s.handleError(c, err, "Failed to set source bandwidth")
	}
	return s.reply(c, http.StatusOK)
}

// setToggle builds a handler for an on/off source setting.
func (s *Server) setToggle(set func(Session, context.Context, bool) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		req, err := bind[toggleRequest](c)
		if err != nil {
			return s.handleError(c, err, "Invalid setting")
		}
		if err := set(s.session, c.Request().Context(), req.Enabled); err != nil {
			return s.handleError(c, err, "Failed to apply setting")
		}
		return s.reply(c, http.StatusOK)
	}
}

func (s *Server) setThrottle(c echo.Context) error {
	req, err := bind[throttleRequest](c)
	if err != nil {
		return s.handleError(c, err, "Invalid throttle")
	}
	if err := s.session.SetThrottle(c.Request().Context(), req.Enabled, req.Rate); err != nil {
		return s.handleError(c, err, "Failed to set throttle")
	}
	return s.reply(c, http.StatusOK)
}

func (s *Server) setRecord(c echo.Context) error {
	req, err := bind[recordRequest](c)
	if err != nil {
		return s.handleError(c, err, "Invalid record request")
	}
	if err := s.session.SetRecord(c.Request().Context(), req.Enabled, req.Dir); err != nil {
		return s.handleError(c, err, "Failed to change recording")
	}
	return s.reply(c, http.StatusOK)
}

func (s *Server) setAudio(c echo.Context) error {
	req, err := bind[session.AudioConfig](c)
	if err == nil {
		err = finite("audio", req.Cutoff, req.Volume)
	}
	if err != nil {
		return s.handleError(c, err, "Invalid audio settings")
	}
	if err := s.session.SetAudio(c.Request().Context(), req); err != nil {
		return s.handleError(c, err, "Failed to apply audio settings")
	}
	return s.reply(c, http.StatusOK)
}

func (s *Server) setCursor(c echo.Context) error {
	req, err := bind[cursorRequest](c)
	if err == nil {
		err = finite("cursor", req.LO)
	}
	if err != nil {
		return s.handleError(c, err, "Invalid cursor")
	}
	if err := s.session.SetCursor(c.Request().Context(), req.LO); err != nil {
		return s.handleError(c, err, "Failed to move cursor")
	}
	return s.reply(c, http.StatusOK)
}

func (s *Server) setDisplayBandwidth(c echo.Context) error {
	req, err := bind[bandwidthRequest](c)
	if err == nil {
		err = finite("bandwidth", req.Bandwidth)
	}
	if err != nil {
		return s.handleError(c, err, "Invalid bandwidth")
	}
	if err := s.session.SetDisplayBandwidth(c.Request().Context(), req.Bandwidth); err != nil {
		return s.handleError(c, err, "Failed to set bandwidth")
	}
	return s.reply(c, http.StatusOK)
}

func (s *Server) setParams(c echo.Context) error {
	p, err := bind[analyzer.Params](c)
	if err != nil {
		return s.handleError(c, err, "Invalid analyzer parameters")
	}
	if err := s.session.SetParams(c.Request().Context(), p); err != nil {
		return s.handleError(c, err, "Failed to set analyzer parameters")
	}
	return s.reply(c, http.StatusOK)
}

// openInspector answers 202: the inspector appears on the stream once the
// analyzer has opened it.
func (s *Server) openInspector(c echo.Context) error {
	req, err := bind[session.InspectorConfig](c)
	if err == nil {
		err = finite("bandwidth", req.Bandwidth)
	}
	if err != nil {
		return s.handleError(c, err, "Invalid inspector request")
	}
	if err := s.session.OpenInspector(c.Request().Context(), req); err != nil {
		return s.handleError(c, err, "Failed to open inspector")
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) closeInspector(c echo.Context) error {
	tag, err := strconv.ParseUint(c.Param("tag"), 10, 32)
	if err != nil {
		return s.handleError(c, badRequest(err, "tag"), "Invalid inspector tag")
	}
	if err := s.session.CloseInspector(c.Request().Context(), analyzer.InspectorID(tag)); err != nil {
		return s.handleError(c, err, "Failed to close inspector")
	}
	return c.NoContent(http.StatusAccepted)
}

const defaultNotificationLimit = 50

func (s *Server) listNotifications(c echo.Context) error {
	filter := &notification.FilterOptions{Limit: defaultNotificationLimit}
	if v := c.QueryParam("status"); v != "" {
		filter.Status = []notification.Status{notification.Status(v)}
	}
	if v := c.QueryParam("type"); v != "" {
		filter.Types = []notification.Type{notification.Type(v)}
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return s.handleError(c, badRequest(errors.NewStd("limit must be a positive integer"), "limit"), "Invalid limit")
		}
		filter.Limit = limit
	}
	if v := c.QueryParam("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return s.handleError(c, badRequest(err, "since"), "Invalid since timestamp")
		}
		filter.Since = &since
	}

	list := s.notifications.List(filter)
	if list == nil {
		list = []*notification.Notification{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"notifications": list,
		"count":         len(list),
	})
}

func (s *Server) markNotificationRead(c echo.Context) error {
	if err := s.notifications.MarkAsRead(c.Param("id")); err != nil {
		return s.handleError(c, err, "Failed to mark notification read")
	}
	return c.NoContent(http.StatusNoContent)
}
