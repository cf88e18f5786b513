package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/caronline/vehiclesvc/internal/db"
	"github.com/caronline/vehiclesvc/internal/models"
)

// VehicleHandler serves the catalog CRUD behind the permission guards.
type VehicleHandler struct {
	db *gorm.DB
}

// NewVehicleHandler constructs the vehicle handler.
func NewVehicleHandler(conn *gorm.DB) *VehicleHandler {
	return &VehicleHandler{db: conn}
}

type vehicleRequest struct {
	Brand     string `json:"brand"`
	Model     string `json:"model"`
	Year      string `json:"year"`
	Price     string `json:"price"`
	Condition string `json:"condition"`
	Mileage   string `json:"mileage"`
	Color     string `json:"color"`
	Image     string `json:"image"`
}

// List returns live listings, optionally filtered by brand substring.
func (h *VehicleHandler) List(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).
		Where("status IS NULL OR status <> ?", models.VehicleStatusDeleted)

	if brand := strings.TrimSpace(c.Query("brand")); brand != "" {
		pattern := db.NormalizeLikePattern(h.db, "%"+brand+"%")
		query = query.Where(db.CaseInsensitiveLikeExpr(h.db, "brand"), pattern)
	}

	var vehicles []models.Vehicle
	if errFind := query.Order("id DESC").Find(&vehicles).Error; errFind != nil {
		log.WithError(errFind).Error("vehicles: list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list vehicles"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicles": vehicles})
}

// Get returns one live listing.
func (h *VehicleHandler) Get(c *gin.Context) {
	vehicle, ok := h.loadLive(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicle": vehicle})
}

// Create adds a listing.
func (h *VehicleHandler) Create(c *gin.Context) {
	var req vehicleRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Brand) == "" || strings.TrimSpace(req.Model) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "brand and model are required"})
		return
	}

	vehicle := models.Vehicle{
		Brand:     strings.TrimSpace(req.Brand),
		Model:     strings.TrimSpace(req.Model),
		Year:      req.Year,
		Price:     req.Price,
		Condition: req.Condition,
		Mileage:   req.Mileage,
		Color:     req.Color,
		Image:     req.Image,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&vehicle).Error; errCreate != nil {
		log.WithError(errCreate).Error("vehicles: create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create vehicle"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"vehicle": vehicle})
}

// Update modifies a listing.
func (h *VehicleHandler) Update(c *gin.Context) {
	vehicle, ok := h.loadLive(c)
	if !ok {
		return
	}

	var req vehicleRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	updates := map[string]any{}
	if strings.TrimSpace(req.Brand) != "" {
		updates["brand"] = strings.TrimSpace(req.Brand)
	}
	if strings.TrimSpace(req.Model) != "" {
		updates["model"] = strings.TrimSpace(req.Model)
	}
	if req.Year != "" {
		updates["year"] = req.Year
	}
	if req.Price != "" {
		updates["price"] = req.Price
	}
	if req.Condition != "" {
		updates["condition"] = req.Condition
	}
	if req.Mileage != "" {
		updates["mileage"] = req.Mileage
	}
	if req.Color != "" {
		updates["color"] = req.Color
	}
	if req.Image != "" {
		updates["image"] = req.Image
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.Vehicle{}).
		Where("id = ?", vehicle.ID).
		Updates(updates).Error; errUpdate != nil {
		log.WithError(errUpdate).Error("vehicles: update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update vehicle"})
		return
	}

	var updated models.Vehicle
	if errReload := h.db.WithContext(c.Request.Context()).Take(&updated, vehicle.ID).Error; errReload != nil {
		log.WithError(errReload).Error("vehicles: reload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update vehicle"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicle": updated})
}

// Delete soft-deletes a listing.
func (h *VehicleHandler) Delete(c *gin.Context) {
	vehicle, ok := h.loadLive(c)
	if !ok {
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.Vehicle{}).
		Where("id = ?", vehicle.ID).
		Update("status", models.VehicleStatusDeleted).Error; errUpdate != nil {
		log.WithError(errUpdate).Error("vehicles: delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete vehicle"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Publish marks a listing as published.
func (h *VehicleHandler) Publish(c *gin.Context) {
	vehicle, ok := h.loadLive(c)
	if !ok {
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.Vehicle{}).
		Where("id = ?", vehicle.ID).
		Update("status", "PUBLISHED").Error; errUpdate != nil {
		log.WithError(errUpdate).Error("vehicles: publish failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not publish vehicle"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"published": true})
}

func (h *VehicleHandler) loadLive(c *gin.Context) (*models.Vehicle, bool) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vehicle id"})
		return nil, false
	}

	var vehicle models.Vehicle
	errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND (status IS NULL OR status <> ?)", id, models.VehicleStatusDeleted).
		Take(&vehicle).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
			return nil, false
		}
		log.WithError(errFind).Error("vehicles: lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return nil, false
	}
	return &vehicle, true
}
