package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fhpereira/acesso/internal/services"
	"github.com/fhpereira/acesso/pkg/errors"
	"github.com/fhpereira/acesso/pkg/response"
)

// RegisterHandler exposes account signup.
type RegisterHandler struct {
	registrations *services.RegistrationService
}

func NewRegisterHandler(registrations *services.RegistrationService) *RegisterHandler {
	return &RegisterHandler{registrations: registrations}
}

type registerRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// POST /api/auth/register
//
// Accepts JSON or a form submission. Signup never issues tokens; the client
// is pointed back to the home page to log in with the new credentials. Form
// posts get a 303 redirect there directly.
func (h *RegisterHandler) Register(c *gin.Context) {
	var req registerRequest
	formPost := isFormPost(c)
	if formPost {
		req.Name = c.PostForm("name")
		req.Email = c.PostForm("email")
		req.Password = c.PostForm("password")
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errors.NewBadRequest("invalid JSON payload"))
		return
	}

	user, err := h.registrations.Register(c.Request.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if formPost {
		c.Redirect(http.StatusSeeOther, services.RegisterRedirect)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user": gin.H{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
		"redirect": services.RegisterRedirect,
	})
}

func isFormPost(c *gin.Context) bool {
	contentType := c.ContentType()
	return strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data")
}
