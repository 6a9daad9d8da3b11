package fakeapp

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
)

const ctxClaims = "fakeapp.claims"

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTP     string `json:"totp"`
}

type apiUser struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// handleAPILogin issues a bearer token and, so a browser can adopt the login,
// a session cookie.
func (s *Server) handleAPILogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	ip := c.ClientIP()
	if blocked, wait := s.limiter.blocked(ip, req.Email); blocked {
		c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many failed attempts"})
		return
	}

	acct, ok := s.accounts.Authenticate(req.Email, req.Password)
	if !ok {
		s.limiter.failure(ip, req.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if acct.TOTPSecret != "" && !totp.Validate(strings.TrimSpace(req.TOTP), acct.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "totp required"})
		return
	}
	s.limiter.success(ip, req.Email)

	token, exp, err := s.tokens.issue(acct)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to sign token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	s.setSessionCookie(c, s.sessions.create(acct, false))
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
		"user":       apiUser{Email: acct.Email, Role: acct.Role},
	})
}

// requireAPIAuth accepts a bearer token or a browser session cookie.
func (s *Server) requireAPIAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			claims, err := s.tokens.parse(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.Set(ctxClaims, apiUser{Email: claims.Email, Role: claims.Role})
			c.Next()
			return
		}
		if sess := sessionFrom(c); sess != nil {
			c.Set(ctxClaims, apiUser{Email: sess.Email, Role: sess.Role})
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
}

func (s *Server) requireAPIAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiUserFrom(c).Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func apiUserFrom(c *gin.Context) apiUser {
	v, _ := c.Get(ctxClaims)
	u, _ := v.(apiUser)
	return u
}

func (s *Server) handleAPIUser(c *gin.Context) {
	c.JSON(http.StatusOK, apiUserFrom(c))
}

func (s *Server) handleAPIEvents(c *gin.Context) {
	events := s.events.visibleTo(apiUserFrom(c).Role)
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (s *Server) handleAPIAdminEvents(c *gin.Context) {
	events := s.events.visibleTo(RoleAdmin)
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (s *Server) handleAPISummary(c *gin.Context) {
	u := apiUserFrom(c)
	summary := gin.H{
		"role":   u.Role,
		"events": len(s.events.visibleTo(u.Role)),
	}
	if u.Role == RoleAdmin {
		summary["pending_vetting"] = len(s.events.withStatus(EventPending))
	}
	c.JSON(http.StatusOK, summary)
}
