package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/happyhackingspace/formflat"
	"github.com/happyhackingspace/formflat/internal/export"
)

type tokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type formsRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) fetchToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, err)
		return
	}
	token, err := s.cfg.Client.FetchToken(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) fetchForms(c *gin.Context) {
	var req formsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, err)
		return
	}
	_, raw, err := s.cfg.Client.WithToken(req.Token).Forms(c.Request.Context())
	if err != nil {
		respondJobError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) downloadData(c *gin.Context) {
	pk := c.Param("pk")
	if _, err := strconv.ParseUint(pk, 10, 64); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, fmt.Errorf("form id %q is not numeric", pk))
		return
	}
	token := c.PostForm("userToken")
	if token == "" {
		respondError(c, http.StatusBadRequest, CodeBadRequest, errors.New("userToken is required"))
		return
	}
	f := s.cfg.DefaultFormat
	if v := c.PostForm("format"); v != "" {
		parsed, err := export.ParseFormat(v)
		if err != nil {
			respondError(c, http.StatusBadRequest, CodeBadRequest, err)
			return
		}
		f = parsed
	}

	ex, err := formflat.New(s.cfg.Client.WithToken(token), s.cfg.Options)
	if err != nil {
		respondJobError(c, err)
		return
	}

	tmp, err := os.CreateTemp("", "formflat-*."+f.Ext())
	if err != nil {
		respondJobError(c, err)
		return
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil {
			slog.Warn("Failed to remove temp file", "path", tmp.Name(), "error", err)
		}
	}()

	res, err := ex.Export(c.Request.Context(), pk, f, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		respondJobError(c, err)
		return
	}

	c.Header("X-Job-ID", res.JobID)
	c.Header("Content-Type", f.ContentType())
	c.FileAttachment(tmp.Name(), pk+"."+f.Ext())
}
