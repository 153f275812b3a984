package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/assetverse-server/internal/models"
)

func (h *Handler) ListAffiliations(c *gin.Context) {
	filter := models.AffiliationFilter{
		HREmail:       c.Query("hrEmail"),
		EmployeeEmail: c.Query("employeeEmail"),
		ActiveOnly:    c.Query("status") == string(models.AffiliationActive),
	}

	affiliations, err := h.svc.ListAffiliations(c.Request.Context(), callerEmail(c), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.ListResponse[models.EmployeeAffiliation]{Status: "success", Items: affiliations})
}

func (h *Handler) ListTeam(c *gin.Context) {
	team, err := h.svc.ListTeam(c.Request.Context(), callerEmail(c), c.Query("companyName"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.ListResponse[models.EmployeeAffiliation]{Status: "success", Items: team})
}

func (h *Handler) ListCompanies(c *gin.Context) {
	companies, err := h.svc.ListCompanies(c.Request.Context(), callerEmail(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.ListResponse[string]{Status: "success", Items: companies})
}

func (h *Handler) TeamBirthdays(c *gin.Context) {
	birthdays, err := h.svc.TeamBirthdays(c.Request.Context(), callerEmail(c), c.Query("companyName"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.ListResponse[models.TeamBirthday]{Status: "success", Items: birthdays})
}

func (h *Handler) RemoveEmployee(c *gin.Context) {
	resp, err := h.svc.RemoveEmployee(c.Request.Context(), callerEmail(c), c.Param("employeeEmail"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
