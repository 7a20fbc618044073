package handler

import (
	"net/http"

	"kasabot/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid JSON: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		for _, fe := range err.(validator.ValidationErrors) {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// userID reads the :user_id path segment, the chat id notifications go to.
func userID(c *gin.Context) (string, bool) {
	id := c.Param("user_id")
	if err := validate.Var(id, "required,numeric,max=20"); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("user_id must be a numeric chat id"))
		return "", false
	}
	return id, true
}

func kasaID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("kasa_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("kasa_id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}
