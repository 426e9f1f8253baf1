package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type SchemaHandler struct {
	schemaService service.SchemaDocService
	auth          *middleware.Auth
}

func NewSchemaHandler(schemaService service.SchemaDocService, auth *middleware.Auth) *SchemaHandler {
	return &SchemaHandler{schemaService: schemaService, auth: auth}
}

func (h *SchemaHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/schema")
	group.Use(h.auth.RequireRole(jobRoles...))
	{
		group.GET("/tables", h.ListTables)
		group.GET("/tables/:table", h.DescribeTable)
		group.PUT("/tables/:table/columns/:column", h.SetColumnDescription)
	}
}

// ListTables lists the tables of the public schema
// @Summary      List tables
// @Tags         schema
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]repository.TableInfo}
// @Router       /api/schema/tables [get]
func (h *SchemaHandler) ListTables(c *gin.Context) {
	tables, err := h.schemaService.ListTables(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tables))
}

// DescribeTable returns the columns of a table with their stored descriptions
// @Summary      Describe table
// @Tags         schema
// @Security     BearerAuth
// @Produce      json
// @Param        table  path      string  true  "Table name"
// @Success      200    {object}  response.Response{data=service.TableDescription}
// @Failure      404    {object}  response.Response
// @Router       /api/schema/tables/{table} [get]
func (h *SchemaHandler) DescribeTable(c *gin.Context) {
	desc, err := h.schemaService.DescribeTable(c.Request.Context(), c.Param("table"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, desc))
}

// SetColumnDescription stores the documentation text of one column
// @Summary      Set column description
// @Tags         schema
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        table    path      string                               true  "Table name"
// @Param        column   path      string                               true  "Column name"
// @Param        payload  body      service.SetColumnDescriptionRequest  true  "Description"
// @Success      200      {object}  response.Response{data=service.TableDescription}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/schema/tables/{table}/columns/{column} [put]
func (h *SchemaHandler) SetColumnDescription(c *gin.Context) {
	var req service.SetColumnDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	table := c.Param("table")
	if err := h.schemaService.SetColumnDescription(c.Request.Context(), table, c.Param("column"), req.Description, middleware.Actor(c)); err != nil {
		respondError(c, err)
		return
	}

	desc, err := h.schemaService.DescribeTable(c.Request.Context(), table)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, desc))
}
