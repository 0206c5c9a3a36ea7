package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fsbo_scrooper/models"
	"fsbo_scrooper/scraper"
	"fsbo_scrooper/solver"
	"fsbo_scrooper/storage"
)

const (
	defaultHistory = 20
	maxHistory     = 200
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": s.opts.Now().UTC(),
	})
}

func badZip(c *gin.Context, zip string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Invalid ZIP code: " + sanitizeText(zip),
		"example": "/scrape?zip=90210&urlType=fsbo",
	})
}

func (s *Server) handleScrape(c *gin.Context) {
	if s.opts.Scraper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Scraper not configured"})
		return
	}

	zip := c.Query("zip")
	if !scraper.ValidZip(zip) {
		badZip(c, zip)
		return
	}
	req := models.ScrapeRequest{ZipCode: zip, URLType: c.Query("urlType")}

	res, err := s.opts.Scraper.Scrape(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": sanitizeText(err.Error())})
		return
	}
	c.JSON(http.StatusOK, Sanitize(res))
}

type webhookRequest struct {
	ZipCode string `json:"zipCode"`
	URLType string `json:"urlType"`
}

func (s *Server) handleWebhook(c *gin.Context) {
	if s.opts.Recorder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Scraper not configured"})
		return
	}

	var body webhookRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
		return
	}
	if !scraper.ValidZip(body.ZipCode) {
		badZip(c, body.ZipCode)
		return
	}

	res, err := s.opts.Recorder.Run(c.Request.Context(), models.ScrapeRequest{ZipCode: body.ZipCode, URLType: body.URLType})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": sanitizeText(err.Error())})
		return
	}
	res = Sanitize(res)

	msg := "Scraped " + strconv.Itoa(res.Count) + " listings"
	if !res.Success {
		msg = "Scrape failed: " + res.Error
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         res.Success,
		"message":         msg,
		"savedId":         res.ID,
		"captchaDetected": res.CaptchaDetected,
		"listings":        res.Listings,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := defaultHistory
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxHistory {
		limit = maxHistory
	}

	rows, err := s.opts.Store.ListResults(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	if rows == nil {
		rows = []models.ResultSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "results": rows})
}

func (s *Server) handleListing(c *gin.Context) {
	res, err := s.opts.Store.GetResult(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Result not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load result"})
		return
	}
	c.JSON(http.StatusOK, Sanitize(res))
}

func (s *Server) handleSolverStatus(c *gin.Context) {
	if s.opts.Solver == nil {
		c.JSON(http.StatusOK, gin.H{"configured": false, "error": "Remote solver not configured"})
		return
	}

	balance, err := s.opts.Solver.Balance(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"configured": true, "balance": balance})
	case errors.Is(err, solver.ErrNoAPIKey):
		c.JSON(http.StatusOK, gin.H{"configured": false, "error": "ANTICAPTCHA_API_KEY is not set"})
	case errors.Is(err, solver.ErrInvalidKey), errors.Is(err, solver.ErrZeroBalance):
		c.JSON(http.StatusOK, gin.H{"configured": true, "error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"configured": true, "error": sanitizeText(err.Error())})
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.opts.Recorder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scraper not configured"})
		return
	}
	data, err := s.opts.Recorder.MarshalStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Status unavailable"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (s *Server) handleCommand(c *gin.Context) {
	if s.opts.Commands == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Command queue not running"})
		return
	}

	var cmd models.Command
	if err := c.ShouldBindJSON(&cmd); err != nil || cmd.Command == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid command"})
		return
	}
	switch cmd.Command {
	case models.CmdScrapeNow, models.CmdScrapeZip, models.CmdPause, models.CmdResume:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown command " + sanitizeText(string(cmd.Command))})
		return
	}

	id, err := s.opts.Commands.Submit(&cmd)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "command": cmd.Command})
}
