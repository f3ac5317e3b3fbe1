package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"dorm-billing-backend/internal/model"
	"dorm-billing-backend/internal/parse"
)

// BuildingResponse represents the API response for a single building.
type BuildingResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	MaxFloor   int    `json:"max_floor"`
	TotalRooms int64  `json:"total_rooms"`
}

// GetBuildings handles the GET /api/buildings request.
func GetBuildings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var buildings []model.Building
		if err := db.Order("name").Find(&buildings).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve buildings"})
			return
		}

		// One aggregate pass over rooms instead of a count per building.
		type AggRow struct {
			BuildingID int64
			TotalRooms int64
			MaxFloor   int
		}
		var aggs []AggRow
		if err := db.
			Model(&model.Room{}).
			Select("building_id as building_id, COUNT(*) as total_rooms, COALESCE(MAX(floor), 0) as max_floor").
			Group("building_id").
			Scan(&aggs).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate rooms"})
			return
		}

		aggMap := make(map[int64]AggRow, len(aggs))
		for _, a := range aggs {
			aggMap[a.BuildingID] = a
		}

		responses := make([]BuildingResponse, 0, len(buildings))
		for _, b := range buildings {
			a := aggMap[b.ID]
			responses = append(responses, BuildingResponse{
				ID: b.ID, Name: b.Name, Address: b.Address,
				MaxFloor: a.MaxFloor, TotalRooms: a.TotalRooms,
			})
		}
		c.JSON(http.StatusOK, responses)
	}
}

type postRoomRequest struct {
	Number string `json:"number" binding:"required"`
}

// PostBuildingRoom handles POST /api/buildings/{building_id}/rooms. The floor
// is derived from the room number, which follows the floor*100+seq convention.
func PostBuildingRoom(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		buildingID, err := strconv.ParseInt(c.Param("building_id"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid building ID"})
			return
		}

		var req postRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		parsed, err := parse.ParseRoomNumber(req.Number)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var building model.Building
		if err := db.First(&building, buildingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Building not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up building"})
			return
		}

		room := model.Room{BuildingID: building.ID, Number: req.Number, Floor: parsed.Floor}
		if err := db.Create(&room).Error; err != nil {
			// The unique index on (building_id, number) rejects duplicates.
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Room already exists in this building"})
			return
		}
		c.JSON(http.StatusCreated, room)
	}
}

// roomResponse is one room in the building browse list, annotated with the
// most recently recorded billing period, if any.
type roomResponse struct {
	model.Room
	LastRecordedMonth *int `json:"last_recorded_month,omitempty"`
	LastRecordedYear  *int `json:"last_recorded_year,omitempty"`
}

// GetBuildingRooms handles the GET /api/buildings/{building_id}/rooms request.
func GetBuildingRooms(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		buildingID, err := strconv.ParseInt(c.Param("building_id"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid building ID"})
			return
		}

		var rooms []model.Room
		if err := db.Where("building_id = ?", buildingID).Order("number").Find(&rooms).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve rooms"})
			return
		}

		roomIDs := make([]int64, len(rooms))
		for i, r := range rooms {
			roomIDs[i] = r.ID
		}

		var usages []model.MonthlyUsage
		if len(roomIDs) > 0 {
			if err := db.
				Where("room_id IN ?", roomIDs).
				Order("year DESC, month DESC").
				Find(&usages).Error; err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve usages"})
				return
			}
		}

		// Usages are newest first; the first row per room is its latest period.
		latest := make(map[int64]model.MonthlyUsage)
		for _, u := range usages {
			if _, seen := latest[u.RoomID]; !seen {
				latest[u.RoomID] = u
			}
		}

		response := make([]roomResponse, 0, len(rooms))
		for _, room := range rooms {
			rr := roomResponse{Room: room}
			if u, ok := latest[room.ID]; ok {
				m, y := u.Month, u.Year
				rr.LastRecordedMonth = &m
				rr.LastRecordedYear = &y
			}
			response = append(response, rr)
		}
		c.JSON(http.StatusOK, response)
	}
}
