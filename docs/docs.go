// Package docs registers the OpenAPI description served by gin-swagger.
// Regenerate with `swag init -g internal/http/router.go -o docs` after
// changing handler annotations.
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
        "BasicAuth": {"type": "basic"}
    },
    "paths": {
        "/invitations/{slug}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Invitations"],
                "summary": "Load an invitation",
                "operationId": "getInvitation",
                "parameters": [
                    {"type": "string", "description": "Invitation slug", "name": "slug", "in": "path", "required": true},
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.LoadResult"}},
                    "304": {"description": "Not Modified"},
                    "400": {"description": "Invalid slug", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Invitation not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/invitations/{slug}/rsvp": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Invitations"],
                "summary": "Submit an RSVP",
                "operationId": "submitRSVP",
                "parameters": [
                    {"type": "string", "description": "Invitation slug", "name": "slug", "in": "path", "required": true},
                    {"type": "string", "description": "Replay-safe key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Decision", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RSVPRequest"}}
                ],
                "responses": {
                    "200": {"description": "Replayed", "schema": {"$ref": "#/definitions/services.RSVPResult"}},
                    "201": {"description": "Synced", "schema": {"$ref": "#/definitions/services.RSVPResult"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/services.RSVPResult"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Invitation not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/invitations/{slug}/wedding-date": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Invitations"],
                "summary": "Get the wedding date",
                "operationId": "getWeddingDate",
                "parameters": [{"type": "string", "name": "slug", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WeddingDateResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Invitations"],
                "summary": "Set the wedding date",
                "operationId": "putWeddingDate",
                "parameters": [
                    {"type": "string", "name": "slug", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.WeddingDateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WeddingDateResponse"}},
                    "202": {"description": "Cached, remote pending", "schema": {"$ref": "#/definitions/handlers.WeddingDateResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/invitations/{slug}/events": {
            "get": {
                "produces": ["text/event-stream"],
                "tags": ["Invitations"],
                "summary": "Stream invitation updates",
                "operationId": "invitationEvents",
                "parameters": [{"type": "string", "name": "slug", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/sync/pending": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "List queued RSVPs",
                "operationId": "listPending",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.PendingResponse"}}}
            }
        },
        "/sync/flush": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Sync queued RSVPs now",
                "operationId": "flushPending",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/services.FlushResult"}}}
            }
        },
        "/admin/invitations": {
            "get": {
                "security": [{"BasicAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List client records (paginated)",
                "operationId": "adminListInvitations",
                "parameters": [
                    {"type": "integer", "default": 1, "minimum": 1, "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "minimum": 1, "maximum": 100, "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/admin/invitations/{slug}": {
            "put": {
                "security": [{"BasicAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Create or update a client record",
                "operationId": "adminUpsertInvitation",
                "parameters": [
                    {"type": "string", "name": "slug", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.ClientRecord"}}
                ],
                "responses": {"200": {"description": "Updated"}, "201": {"description": "Created"}}
            }
        },
        "/admin/invitations/search": {
            "get": {
                "security": [{"BasicAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Search client records",
                "operationId": "adminSearchInvitations",
                "parameters": [
                    {"type": "string", "name": "q", "in": "query", "required": true},
                    {"type": "integer", "default": 10, "name": "k", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/admin/summary": {
            "get": {
                "security": [{"BasicAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "RSVP summary",
                "operationId": "adminSummary",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/admin/import": {
            "post": {
                "security": [{"BasicAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Bulk import client records",
                "operationId": "adminImport",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "invitation not found"}
            }
        },
        "handlers.RSVPRequest": {
            "type": "object",
            "required": ["attending"],
            "properties": {
                "attending": {"type": "boolean"},
                "declineReason": {"type": "string", "example": "Travel conflict"}
            }
        },
        "handlers.WeddingDateRequest": {
            "type": "object",
            "required": ["weddingDate"],
            "properties": {"weddingDate": {"type": "string", "example": "2026-06-20"}}
        },
        "handlers.WeddingDateResponse": {
            "type": "object",
            "properties": {
                "weddingDate": {"type": "string", "example": "2026-06-20"},
                "synced": {"type": "boolean"}
            }
        },
        "handlers.PendingResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "pending": {"type": "array", "items": {"$ref": "#/definitions/domain.PendingRSVP"}}
            }
        },
        "domain.PendingRSVP": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "slug": {"type": "string"},
                "attending": {"type": "boolean"},
                "declineReason": {"type": "string"},
                "timestamp": {"type": "integer"},
                "synced": {"type": "boolean"}
            }
        },
        "domain.CachedInvitation": {
            "type": "object",
            "properties": {
                "slug": {"type": "string"},
                "guestName": {"type": "string"},
                "weddingInfo": {"type": "object"},
                "guest": {"type": "object"},
                "timestamp": {"type": "integer"},
                "lastUpdated": {"type": "integer"}
            }
        },
        "services.LoadResult": {
            "type": "object",
            "properties": {
                "invitation": {"$ref": "#/definitions/domain.CachedInvitation"},
                "weddingDate": {"type": "string"},
                "source": {"type": "string", "enum": ["remote", "cache"]}
            }
        },
        "services.RSVPResult": {
            "type": "object",
            "properties": {
                "rsvp": {"$ref": "#/definitions/domain.PendingRSVP"},
                "synced": {"type": "boolean"},
                "replayed": {"type": "boolean"}
            }
        },
        "services.FlushResult": {
            "type": "object",
            "properties": {
                "attempted": {"type": "integer"},
                "synced": {"type": "integer"},
                "failed": {"type": "integer"},
                "skipped": {"type": "integer"}
            }
        },
        "services.ClientRecord": {
            "type": "object",
            "properties": {
                "guestName": {"type": "string"},
                "weddingDate": {"type": "string"},
                "weddingInfo": {"type": "object"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Wedding Invitation API",
	Description:      "Guest invitations with an offline cache and an RSVP outbox that syncs to the document store.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
