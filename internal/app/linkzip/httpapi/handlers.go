package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"linkzip.local/internal/app/linkzip"
	"linkzip.local/internal/app/linkzip/phishtank"
	"linkzip.local/internal/platform/httpmiddleware"
)

type URLRequest struct {
	URL string `json:"url"`
}

type LinkInfo struct {
	Link     string `json:"link"`
	FullLink string `json:"full_link"`
	URL      string `json:"url"`
	Visits   int64  `json:"visits"`
}

type GenericInfo struct {
	Detail string `json:"detail"`
}

type handlers struct {
	d Deps
}

func (h *handlers) linkInfo(l linkzip.Link) LinkInfo {
	return LinkInfo{
		Link:     l.Code,
		FullLink: h.d.Service.FullLink(l.Code),
		URL:      l.URL,
		Visits:   l.Visits,
	}
}

func (h *handlers) root(c *gin.Context) {
	c.Redirect(http.StatusMovedPermanently, h.d.SiteDomain)
}

func (h *handlers) notFoundPage(c *gin.Context) {
	c.HTML(http.StatusNotFound, "404.html", gin.H{
		"APIName":  h.d.APIName,
		"Homepage": h.d.SiteDomain,
	})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, "OK")
}

func (h *handlers) createURL(c *gin.Context) {
	var req URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpmiddleware.AbortWithError(c, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	l, err := h.d.Service.Shorten(c.Request.Context(), req.URL)
	if err != nil {
		var phish *linkzip.PhishingError
		switch {
		case errors.Is(err, linkzip.ErrInvalidURL):
			httpmiddleware.AbortWithError(c, http.StatusUnprocessableEntity, "Invalid URL")
		case errors.As(err, &phish):
			httpmiddleware.AbortWithError(c, http.StatusForbidden,
				"Phishing URLs are Forbidden. More details about the URL: "+phish.DetailURL)
		default:
			slog.Error("create link failed", "err", err, "request_id", c.GetHeader(httpmiddleware.RequestIDHeader))
			httpmiddleware.AbortWithError(c, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}
	c.JSON(http.StatusOK, h.linkInfo(l))
}

func (h *handlers) redirect(c *gin.Context) {
	res, err := h.d.Service.Resolve(c.Request.Context(), c.Param("link"), linkzip.Visit{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	})
	if errors.Is(err, linkzip.ErrLinkNotFound) {
		c.Redirect(http.StatusTemporaryRedirect, "/404")
		return
	}
	if err != nil {
		slog.Error("resolve link failed", "err", err, "link", c.Param("link"))
		httpmiddleware.AbortWithError(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if res.PhishDetailURL != "" {
		c.Redirect(http.StatusTemporaryRedirect, res.PhishDetailURL)
		return
	}
	c.Redirect(http.StatusMovedPermanently, res.URL)
}

func (h *handlers) info(c *gin.Context) {
	l, err := h.d.Service.Info(c.Request.Context(), c.Param("link"))
	if errors.Is(err, linkzip.ErrLinkNotFound) {
		httpmiddleware.AbortWithError(c, http.StatusNotFound, "Link not found")
		return
	}
	if err != nil {
		slog.Error("link info failed", "err", err, "link", c.Param("link"))
		httpmiddleware.AbortWithError(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	c.JSON(http.StatusOK, h.linkInfo(l))
}

func (h *handlers) list(c *gin.Context) {
	limit := linkzip.DefaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpmiddleware.AbortWithError(c, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = n
	}
	links, err := h.d.Service.List(c.Request.Context(), limit)
	if err != nil {
		slog.Error("list links failed", "err", err)
		httpmiddleware.AbortWithError(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	out := make([]LinkInfo, 0, len(links))
	for _, l := range links {
		out = append(out, h.linkInfo(l))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) updatePhishTank(c *gin.Context) {
	days := h.d.CleanupDays
	if v := c.Query("cleanup_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpmiddleware.AbortWithError(c, http.StatusUnprocessableEntity, "cleanup_days must be a positive integer")
			return
		}
		days = n
	}

	rep, err := h.d.Updater.Update(c.Request.Context(), days)
	if errors.Is(err, phishtank.ErrDisabled) {
		httpmiddleware.AbortWithError(c, http.StatusNotImplemented, "PhishTank is not enabled")
		return
	}
	if err != nil {
		slog.Error("phishtank update failed", "err", err)
		httpmiddleware.AbortWithError(c, http.StatusBadGateway, "PhishTank update failed")
		return
	}
	c.JSON(http.StatusOK, GenericInfo{
		Detail: fmt.Sprintf("PhishTank list updated. %d entries have been deleted", rep.Deleted),
	})
}
