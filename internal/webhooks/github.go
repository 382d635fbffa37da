package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shiploop/shiploop-api/internal/database"
)

const (
	sourceGitHub    = "github"
	signaturePrefix = "sha256="
)

type githubSender struct {
	Login string `json:"login"`
}

type githubRepository struct {
	FullName string `json:"full_name"`
}

type pushPayload struct {
	Ref     string `json:"ref"`
	Commits []struct {
		ID       string `json:"id"`
		Distinct *bool  `json:"distinct"`
	} `json:"commits"`
	Repository githubRepository `json:"repository"`
	Sender     githubSender     `json:"sender"`
}

type releasePayload struct {
	Action  string `json:"action"`
	Release struct {
		Name    string `json:"name"`
		TagName string `json:"tag_name"`
		Draft   bool   `json:"draft"`
	} `json:"release"`
	Repository githubRepository `json:"repository"`
	Sender     githubSender     `json:"sender"`
}

// VerifyGitHubSignature checks an X-Hub-Signature-256 header against body.
func VerifyGitHubSignature(secret string, body []byte, header string) bool {
	if secret == "" || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// SignGitHubPayload returns the X-Hub-Signature-256 value for body.
func SignGitHubPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// HandleGitHub verifies the delivery and records commits and launches.
func (h *Handler) HandleGitHub() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.githubSecret == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "github webhooks not configured"})
			return
		}

		body, ok := readBody(c)
		if !ok {
			return
		}

		if !VerifyGitHubSignature(h.githubSecret, body, c.GetHeader("X-Hub-Signature-256")) {
			h.logger.SecurityLogger("github_signature_invalid", c.ClientIP(), c.Request.UserAgent(), nil)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		eventType := c.GetHeader("X-GitHub-Event")
		deliveryID := c.GetHeader("X-GitHub-Delivery")

		if eventType == "ping" {
			h.finish(c, sourceGitHub, eventType, deliveryID, outcomeProcessed, http.StatusOK, gin.H{"message": "pong"})
			return
		}
		if eventType != "push" && eventType != "release" {
			h.finish(c, sourceGitHub, eventType, deliveryID, outcomeIgnored, http.StatusOK, gin.H{"received": true})
			return
		}

		if !h.begin(c, sourceGitHub, deliveryID, eventType) {
			return
		}

		switch eventType {
		case "push":
			h.handlePush(c, deliveryID, body)
		case "release":
			h.handleRelease(c, deliveryID, body)
		}
	}
}

func (h *Handler) handlePush(c *gin.Context, deliveryID string, body []byte) {
	var p pushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		h.finish(c, sourceGitHub, "push", deliveryID, outcomeIgnored, http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	count := 0
	for _, commit := range p.Commits {
		if commit.Distinct != nil && !*commit.Distinct {
			continue
		}
		count++
	}
	if count == 0 {
		h.finish(c, sourceGitHub, "push", deliveryID, outcomeIgnored, http.StatusOK, gin.H{"received": true, "commits": 0})
		return
	}

	h.recordForSender(c, "push", deliveryID, p.Sender.Login, database.Activity{
		Kind:       database.ActivityCommit,
		Count:      count,
		Repository: p.Repository.FullName,
	}, gin.H{"received": true, "commits": count})
}

func (h *Handler) handleRelease(c *gin.Context, deliveryID string, body []byte) {
	var p releasePayload
	if err := json.Unmarshal(body, &p); err != nil {
		h.finish(c, sourceGitHub, "release", deliveryID, outcomeIgnored, http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if p.Action != "published" || p.Release.Draft {
		h.finish(c, sourceGitHub, "release", deliveryID, outcomeIgnored, http.StatusOK, gin.H{"received": true})
		return
	}

	name := p.Release.Name
	if name == "" {
		name = p.Release.TagName
	}
	h.recordForSender(c, "release", deliveryID, p.Sender.Login, database.Activity{
		Kind:       database.ActivityLaunch,
		Name:       strings.TrimSpace(p.Repository.FullName + " " + name),
		Repository: p.Repository.FullName,
	}, gin.H{"received": true, "launch": name})
}

func (h *Handler) recordForSender(c *gin.Context, eventType, deliveryID, login string, activity database.Activity, response gin.H) {
	ctx := c.Request.Context()

	profile, err := h.sink.ProfileForGitHub(ctx, login)
	if err != nil {
		if stderrors.Is(err, database.ErrNotFound) {
			h.finish(c, sourceGitHub, eventType, deliveryID, outcomeIgnored, http.StatusOK, gin.H{"received": true, "ignored": "no linked profile"})
			return
		}
		h.fail(c, sourceGitHub, eventType, deliveryID, err)
		return
	}

	s, err := h.sink.RecordActivity(ctx, profile.ID, activity)
	if err != nil {
		h.fail(c, sourceGitHub, eventType, deliveryID, err)
		return
	}
	h.scoresChanged()

	response["total"] = s.Total
	response["streak"] = s.Streak.CurrentStreak
	h.finish(c, sourceGitHub, eventType, deliveryID, outcomeProcessed, http.StatusOK, response)
}
