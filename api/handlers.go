package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sweetpotato0/agri-advisor/advisory"
	"github.com/sweetpotato0/agri-advisor/environment"
	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/message"
	"github.com/sweetpotato0/agri-advisor/middleware"
)

type location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (l location) coordinates() (*environment.Coordinates, error) {
	if l.Latitude == nil && l.Longitude == nil {
		return nil, nil
	}
	if l.Latitude == nil || l.Longitude == nil {
		return nil, fmt.Errorf("%w: latitude and longitude must be given together", agerrors.ErrInvalidInput)
	}
	at := &environment.Coordinates{Latitude: *l.Latitude, Longitude: *l.Longitude}
	if err := at.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", agerrors.ErrInvalidInput, err)
	}
	return at, nil
}

type adviceRequest struct {
	location
	SessionID      string `json:"session_id"`
	Query          string `json:"query"`
	SoilType       string `json:"soil_type"`
	Crop           string `json:"crop"`
	ReportedAction string `json:"reported_action"`
	Place          string `json:"location"`
	ImageBase64    string `json:"image_base64"`
}

func (r adviceRequest) structured() bool {
	return r.SoilType != "" || r.Crop != "" || r.ReportedAction != "" || r.Place != ""
}

type chatRequest struct {
	location
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

type analysisRequest struct {
	location
	SessionID string `json:"session_id"`
}

type environmentRequest struct {
	location
	Refresh bool `json:"refresh"`
}

func errorBody(msg string) gin.H {
	return gin.H{"error": msg}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, agerrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, agerrors.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, agerrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.JSON(code, errorBody(msg))
}

func (s *Server) advice(c *gin.Context) {
	var body adviceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	req := advisory.Request{Query: strings.TrimSpace(body.Query)}
	if body.structured() {
		in, err := advisory.NewFarmerInput(body.SoilType, body.Crop, body.ReportedAction, body.Place)
		if err != nil {
			s.fail(c, err)
			return
		}
		req.Input = &in
	}
	at, err := body.coordinates()
	if err != nil {
		s.fail(c, err)
		return
	}
	req.Location = at
	if body.ImageBase64 != "" {
		img, err := base64.StdEncoding.DecodeString(body.ImageBase64)
		if err != nil {
			s.fail(c, fmt.Errorf("%w: image_base64: %w", agerrors.ErrInvalidInput, err))
			return
		}
		req.Image = img
	}

	mc := middleware.NewContext(c.Request.Context(), req)
	mc.Client = c.ClientIP()
	mc.SessionID = body.SessionID
	if err := s.deps.Chain.Execute(mc, middleware.RunPipeline(s.deps.Pipeline)); err != nil {
		s.fail(c, err)
		return
	}

	resp := mc.Response
	code := http.StatusOK
	if !resp.Validation.IsValid() {
		code = http.StatusUnprocessableEntity
	}
	c.JSON(code, resp)
}

func (s *Server) chat(c *gin.Context) {
	var body chatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	at, err := body.coordinates()
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	user := message.NewMessage(message.RoleUser, strings.TrimSpace(body.Message))

	if body.SessionID == "" {
		cc := advisory.ChatContext{Environment: s.deps.Environment.Fetch(ctx, at), History: []message.Message{user}}
		reply, err := s.deps.Chat.Reply(ctx, cc)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, reply)
		return
	}

	rec, err := s.deps.Sessions.GetOrCreate(ctx, body.SessionID)
	if err != nil {
		s.fail(c, err)
		return
	}
	env, ok, err := s.deps.Sessions.Environment(ctx, body.SessionID, at)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		env = s.deps.Environment.Fetch(ctx, nil)
	}
	cc := advisory.ChatContext{Crop: rec.Crop, Environment: env, History: append(rec.History, user)}
	reply, err := s.deps.Chat.Reply(ctx, cc)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.deps.Sessions.Append(ctx, body.SessionID, user, message.NewMessage(message.RoleAssistant, reply.Text)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (s *Server) analysis(c *gin.Context) {
	var body analysisRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	at, err := body.coordinates()
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()

	var env environment.Context
	ok := false
	if body.SessionID != "" {
		if _, err := s.deps.Sessions.GetOrCreate(ctx, body.SessionID); err != nil {
			s.fail(c, err)
			return
		}
		env, ok, err = s.deps.Sessions.Environment(ctx, body.SessionID, at)
		if err != nil {
			s.fail(c, err)
			return
		}
	}
	if !ok {
		env = s.deps.Environment.Fetch(ctx, at)
	}
	c.JSON(http.StatusOK, gin.H{
		"analysis":    s.deps.Analyst.Analyze(ctx, env),
		"environment": env,
	})
}

func (s *Server) sessionEnvironment(c *gin.Context) {
	var body environmentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	at, err := body.coordinates()
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.deps.Sessions.GetOrCreate(ctx, id); err != nil {
		s.fail(c, err)
		return
	}

	if body.Refresh {
		env, err := s.deps.Sessions.RefreshEnvironment(ctx, id, at)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": id, "environment": env, "refreshed": true})
		return
	}
	env, ok, err := s.deps.Sessions.Environment(ctx, id, at)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, errorBody("latitude and longitude are required before the first fetch"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "environment": env, "refreshed": false})
}

func (s *Server) sessionHistory(c *gin.Context) {
	history, err := s.deps.Sessions.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if history == nil {
		history = []message.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "history": history})
}
