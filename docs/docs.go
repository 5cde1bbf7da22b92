// Package docs holds the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/pipeline": {
            "get": {
                "tags": ["Pipeline"],
                "summary": "Pipeline board",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Comma separated stage keys", "name": "stage", "in": "query"},
                    {"type": "string", "description": "Assignee", "name": "assigned_user_id", "in": "query"},
                    {"type": "boolean", "description": "Include closed deals", "name": "include_closed", "in": "query"},
                    {"type": "boolean", "description": "Only stale deals", "name": "stale_only", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/pipeline/deals/{id}": {
            "get": {
                "tags": ["Pipeline"],
                "summary": "Deal stage state",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.DealStageState"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/pipeline/deals/{id}/transition": {
            "post": {
                "tags": ["Pipeline"],
                "summary": "Move a deal to another stage",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.transitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "WIP limit exceeded or concurrent modification", "schema": {"$ref": "#/definitions/handlers.transitionErrorBody"}},
                    "422": {"description": "No-op or unknown stage", "schema": {"$ref": "#/definitions/handlers.transitionErrorBody"}}
                }
            }
        },
        "/pipeline/deals/{id}/validate": {
            "post": {
                "tags": ["Pipeline"],
                "summary": "Check a move without applying it",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.validateRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/pipeline/deals/{id}/transitions": {
            "get": {
                "tags": ["Pipeline"],
                "summary": "Stage history of a deal",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.TransitionRecord"}}}}
            }
        },
        "/pipeline/deals/{id}/transitions/export": {
            "get": {
                "tags": ["Pipeline"],
                "summary": "Stage history as PDF",
                "produces": ["application/pdf"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Pipeline"],
                "summary": "Save stage history as PDF",
                "description": "Writes the report to the reports directory and returns its download link.",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "404": {"description": "Not Found"}}
            }
        },
        "/pipeline/reports/{name}": {
            "get": {
                "tags": ["Pipeline"],
                "summary": "Download a saved report",
                "produces": ["application/pdf"],
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/pipeline/deals/{id}/tasks": {
            "get": {
                "tags": ["Tasks"],
                "summary": "Tasks of a deal",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/tasks": {
            "get": {
                "tags": ["Tasks"],
                "summary": "List tasks",
                "parameters": [
                    {"type": "string", "name": "deal_id", "in": "query"},
                    {"type": "string", "name": "assignee_id", "in": "query"},
                    {"type": "string", "name": "status", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/tasks/{id}/status": {
            "patch": {
                "tags": ["Tasks"],
                "summary": "Move a task through its workflow",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"type": "object", "properties": {"status": {"type": "string"}}}}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Illegal status transition"}}
            }
        },
        "/pipeline/wip": {
            "get": {
                "tags": ["Pipeline"],
                "summary": "WIP occupancy of every stage",
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.WipSnapshot"}}}}
            }
        },
        "/pipeline/wip/{stage}": {
            "get": {
                "tags": ["Pipeline"],
                "summary": "WIP occupancy of one stage",
                "parameters": [{"type": "string", "name": "stage", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.WipSnapshot"}}}
            }
        },
        "/stages": {
            "get": {
                "tags": ["Stages"],
                "summary": "Stage catalog",
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.StageDefinition"}}}}
            },
            "post": {
                "tags": ["Stages"],
                "summary": "Add a stage",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.StageDefinition"}}],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Conflict"}}
            }
        },
        "/stages/order": {
            "put": {
                "tags": ["Stages"],
                "summary": "Reorder stages",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.reorderRequest"}}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stages/{key}": {
            "put": {
                "tags": ["Stages"],
                "summary": "Update a stage",
                "parameters": [
                    {"type": "string", "name": "key", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.StageDefinition"}}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "tags": ["Stages"],
                "summary": "Remove an unused stage",
                "parameters": [{"type": "string", "name": "key", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "409": {"description": "Stage in use"}}
            }
        }
    },
    "definitions": {
        "handlers.transitionRequest": {
            "type": "object",
            "required": ["to_stage"],
            "properties": {
                "to_stage": {"type": "string"},
                "from_stage": {"type": "string"},
                "reason": {"type": "string"},
                "override": {"type": "boolean"}
            }
        },
        "handlers.validateRequest": {
            "type": "object",
            "required": ["to_stage"],
            "properties": {
                "to_stage": {"type": "string"},
                "override": {"type": "boolean"}
            }
        },
        "handlers.reorderRequest": {
            "type": "object",
            "required": ["keys"],
            "properties": {"keys": {"type": "array", "items": {"type": "string"}}}
        },
        "handlers.transitionErrorBody": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "reason": {"type": "string"},
                "message": {"type": "string"},
                "wip": {"type": "object", "properties": {"count": {"type": "integer"}, "limit": {"type": "integer"}}},
                "warnings": {"type": "array", "items": {"type": "string"}}
            }
        },
        "models.DealStageState": {
            "type": "object",
            "properties": {
                "deal_id": {"type": "string"},
                "current_stage_key": {"type": "string"},
                "stage_entered_at": {"type": "string"},
                "days_in_stage": {"type": "integer"},
                "is_stale": {"type": "boolean"},
                "staleness": {"type": "string"},
                "health_score": {"type": "integer"},
                "probability": {"type": "integer"},
                "status": {"type": "string"},
                "version": {"type": "integer"}
            }
        },
        "models.TransitionRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "deal_id": {"type": "string"},
                "from_stage_key": {"type": "string"},
                "to_stage_key": {"type": "string"},
                "changed_by": {"type": "string"},
                "changed_at": {"type": "string"},
                "reason": {"type": "string"},
                "overrode_warning": {"type": "boolean"},
                "regression": {"type": "boolean"}
            }
        },
        "models.WipSnapshot": {
            "type": "object",
            "properties": {
                "stage_key": {"type": "string"},
                "deal_count": {"type": "integer"},
                "wip_limit": {"type": "integer"},
                "utilization_percent": {"type": "number"}
            }
        },
        "models.StageDefinition": {
            "type": "object",
            "required": ["key", "display_name"],
            "properties": {
                "key": {"type": "string"},
                "display_name": {"type": "string"},
                "sort_order": {"type": "integer"},
                "wip_limit": {"type": "integer"},
                "warning_days": {"type": "integer"},
                "critical_days": {"type": "integer"},
                "default_probability": {"type": "integer"},
                "is_won_terminal": {"type": "boolean"},
                "is_lost_terminal": {"type": "boolean"},
                "sales_stage": {"type": "string"},
                "next_stages": {"type": "array", "items": {"type": "string"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Deal Pipeline API",
	Description:      "Stage transitions, WIP limits and pipeline board for M&A deals.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
