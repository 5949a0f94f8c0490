package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"loanquery/internal/errs"
	"loanquery/internal/service"
)

type pageData struct {
	Ready     bool
	Flash     string
	Welcome   string
	Turns     []turnView
	Samples   []string
	HasKey    bool
	EnvKey    bool
	Demo      bool
	Info      *service.Info
	InfoError string
}

func (s *Server) index(c *gin.Context) {
	sess := sessionFrom(c)
	hasKey, demo := sess.Settings()
	data := pageData{
		Ready:   s.backend.Ready(),
		Flash:   sess.TakeFlash(),
		Welcome: service.WelcomeMessage,
		Turns:   toTurnViews(sess.History()),
		Samples: s.backend.SampleQuestions(),
		HasKey:  hasKey,
		EnvKey:  s.backend.HasDefaultAPIKey(),
		Demo:    demo || !(hasKey || s.backend.HasDefaultAPIKey()),
	}
	if data.Ready {
		if info, err := s.backend.DatasetInfo(); err == nil {
			data.Info = &info
		} else {
			data.InfoError = errs.UserMessage(err)
		}
	}
	c.HTML(http.StatusOK, "index.html", data)
}

func (s *Server) askForm(c *gin.Context) {
	sess := sessionFrom(c)
	if _, err := s.backend.Ask(c.Request.Context(), sess, c.PostForm("question")); err != nil {
		sess.SetFlash(errs.UserMessage(err))
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) settingsForm(c *gin.Context) {
	sess := sessionFrom(c)
	if key := strings.TrimSpace(c.PostForm("api_key")); key != "" {
		sess.SetAPIKey(key)
	}
	if c.PostForm("forget_key") != "" {
		sess.SetAPIKey("")
	}
	sess.SetDemo(c.PostForm("demo") != "")
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) clearForm(c *gin.Context) {
	sessionFrom(c).Clear()
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) setupForm(c *gin.Context) {
	sess := sessionFrom(c)
	rep, err := s.backend.BuildIndex(c.Request.Context(), service.BuildOptions{})
	if err != nil {
		s.log.Error("setup from dashboard failed", "error", err)
		sess.SetFlash(errs.UserMessage(err))
	} else {
		s.log.Info("setup from dashboard finished", "rows", rep.Rows, "skipped", rep.Skipped)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

type askRequest struct {
	Question string `json:"question"`
}

type settingsRequest struct {
	APIKey *string `json:"api_key"`
	Demo   *bool   `json:"demo"`
}

func (s *Server) fail(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": errs.UserMessage(err)})
}

func (s *Server) askJSON(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	turn, err := s.backend.Ask(c.Request.Context(), sessionFrom(c), req.Question)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTurnView(turn))
}

func (s *Server) historyJSON(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"turns": toTurnViews(sessionFrom(c).History())})
}

func (s *Server) clearJSON(c *gin.Context) {
	sessionFrom(c).Clear()
	c.Status(http.StatusNoContent)
}

// endSessionJSON drops the session with its history and key.
func (s *Server) endSessionJSON(c *gin.Context) {
	s.sessions.Delete(sessionFrom(c).ID)
	c.SetCookie(CookieName, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func (s *Server) settingsJSON(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := sessionFrom(c)
	if req.APIKey != nil {
		sess.SetAPIKey(*req.APIKey)
	}
	if req.Demo != nil {
		sess.SetDemo(*req.Demo)
	}
	hasKey, demo := sess.Settings()
	c.JSON(http.StatusOK, gin.H{"has_api_key": hasKey, "demo": demo})
}

func (s *Server) datasetJSON(c *gin.Context) {
	info, err := s.backend.DatasetInfo()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) samplesJSON(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"questions": s.backend.SampleQuestions()})
}

func (s *Server) healthJSON(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ready": s.backend.Ready(), "sessions": s.sessions.Len()})
}
