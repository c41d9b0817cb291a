package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/subscription"
)

type subscribeRequest struct {
	PlanID int64 `json:"planId" binding:"required,gt=0"`
}

type useCreditRequest struct {
	BookID int64 `json:"bookId" binding:"required,gt=0"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) listPlans(c *gin.Context) {
	plans, err := s.catalog.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if plans == nil {
		plans = []*models.Plan{}
	}
	c.JSON(http.StatusOK, plans)
}

func (s *Server) createPlan(c *gin.Context) {
	var input subscription.PlanInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid subscription plan payload.")
		return
	}

	plan, err := s.catalog.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, plan)
}

func (s *Server) editPlan(c *gin.Context) {
	planID, ok := planIDParam(c)
	if !ok {
		return
	}

	var patch models.PlanPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid subscription plan payload.")
		return
	}

	plan, err := s.catalog.Edit(c.Request.Context(), planID, &patch)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, plan)
}

func (s *Server) deletePlan(c *gin.Context) {
	planID, ok := planIDParam(c)
	if !ok {
		return
	}

	if err := s.catalog.Delete(c.Request.Context(), planID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "A valid planId is required.")
		return
	}

	identity := identityFrom(c)

	sub, err := s.ledger.Subscribe(c.Request.Context(), identity.UserID, req.PlanID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) unsubscribe(c *gin.Context) {
	identity := identityFrom(c)

	if err := s.ledger.Unsubscribe(c.Request.Context(), identity.UserID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "You have been unsubscribed."})
}

func (s *Server) currentSubscription(c *gin.Context) {
	identity := identityFrom(c)

	sub, err := s.ledger.Current(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) credits(c *gin.Context) {
	identity := identityFrom(c)

	credits, err := s.ledger.CreditsFor(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, credits)
}

func (s *Server) useCredit(c *gin.Context) {
	var req useCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "A valid bookId is required.")
		return
	}

	identity := identityFrom(c)

	credits, err := s.ledger.UseCredit(c.Request.Context(), identity.UserID, req.BookID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, credits)
}

func planIDParam(c *gin.Context) (int64, bool) {
	planID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || planID <= 0 {
		respondMessage(c, http.StatusBadRequest, "Invalid subscription plan id.")
		return 0, false
	}
	return planID, true
}
