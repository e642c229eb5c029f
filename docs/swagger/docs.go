// Package docs registers the OpenAPI description of the REST surface with
// swag. It is maintained by hand alongside the routes in interfaces/http/rest.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/videos": {
            "get": {
                "tags": ["videos"],
                "summary": "List the caller's videos",
                "parameters": [{"name": "favorites", "in": "query", "type": "boolean"}],
                "responses": {
                    "200": {"description": "Videos in insertion order", "schema": {"$ref": "#/definitions/VideoList"}},
                    "400": {"description": "Invalid favorites parameter", "schema": {"$ref": "#/definitions/Error"}}
                }
            },
            "post": {
                "tags": ["videos"],
                "summary": "Add a video, resolving its thumbnail",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddVideoRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Video"}},
                    "400": {"description": "Missing field or unsupported link", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/videos/{videoID}": {
            "get": {
                "tags": ["videos"],
                "summary": "Get one of the caller's videos",
                "parameters": [{"name": "videoID", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Video"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/Error"}}
                }
            },
            "delete": {
                "tags": ["videos"],
                "summary": "Delete a video",
                "parameters": [{"name": "videoID", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/videos/{videoID}/favorite": {
            "post": {
                "tags": ["videos"],
                "summary": "Toggle the favorite flag from the value the client last saw",
                "parameters": [
                    {"name": "videoID", "in": "path", "required": true, "type": "string"},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ToggleFavoriteRequest"}}
                ],
                "responses": {
                    "204": {"description": "Toggled"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/Error"}},
                    "409": {"description": "Stale favorite value", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/lists": {
            "get": {
                "tags": ["lists"],
                "summary": "List the caller's lists",
                "responses": {
                    "200": {"description": "Lists in insertion order", "schema": {"$ref": "#/definitions/ListList"}}
                }
            },
            "post": {
                "tags": ["lists"],
                "summary": "Create a list from a title and selected video ids",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateListRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/List"}},
                    "400": {"description": "Missing title or videos", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/lists/candidates": {
            "get": {
                "tags": ["lists"],
                "summary": "Videos that can be added to a new list",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/VideoList"}}
                }
            }
        },
        "/lists/{listID}": {
            "get": {
                "tags": ["lists"],
                "summary": "Get one of the caller's lists",
                "parameters": [{"name": "listID", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/List"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/Error"}}
                }
            },
            "delete": {
                "tags": ["lists"],
                "summary": "Delete a list",
                "parameters": [{"name": "listID", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/sync/{kind}/{screen}": {
            "get": {
                "tags": ["sync"],
                "summary": "Current view for a screen",
                "parameters": [
                    {"name": "kind", "in": "path", "required": true, "type": "string", "enum": ["videos", "lists"]},
                    {"name": "screen", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Snapshot"}},
                    "404": {"description": "Unknown kind", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/sync/{kind}/{screen}/refresh": {
            "post": {
                "tags": ["sync"],
                "summary": "Re-query a screen's view",
                "parameters": [
                    {"name": "kind", "in": "path", "required": true, "type": "string", "enum": ["videos", "lists"]},
                    {"name": "screen", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Snapshot"}},
                    "404": {"description": "Unknown kind", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        }
    },
    "definitions": {
        "AddVideoRequest": {
            "type": "object",
            "required": ["title", "description", "url", "platform"],
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "url": {"type": "string"},
                "platform": {"type": "string", "enum": ["YouTube", "Instagram"]}
            }
        },
        "ToggleFavoriteRequest": {
            "type": "object",
            "properties": {"current": {"type": "boolean"}}
        },
        "CreateListRequest": {
            "type": "object",
            "required": ["title", "videoIds"],
            "properties": {
                "title": {"type": "string"},
                "videoIds": {"type": "array", "items": {"type": "string"}}
            }
        },
        "Video": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "url": {"type": "string"},
                "platform": {"type": "string"},
                "thumbnailUrl": {"type": "string"},
                "embedUrl": {"type": "string"},
                "isFavorite": {"type": "boolean"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "VideoList": {
            "type": "object",
            "properties": {
                "videos": {"type": "array", "items": {"$ref": "#/definitions/Video"}},
                "count": {"type": "integer"}
            }
        },
        "List": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "videos": {"type": "array", "items": {"$ref": "#/definitions/Video"}},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "ListList": {
            "type": "object",
            "properties": {
                "lists": {"type": "array", "items": {"$ref": "#/definitions/List"}},
                "count": {"type": "integer"}
            }
        },
        "Snapshot": {
            "type": "object",
            "properties": {
                "kind": {"type": "string"},
                "screen": {"type": "string"},
                "version": {"type": "integer"},
                "updatedAt": {"type": "string", "format": "date-time"},
                "videos": {"type": "array", "items": {"$ref": "#/definitions/Video"}},
                "lists": {"type": "array", "items": {"$ref": "#/definitions/List"}}
            }
        },
        "Error": {
            "type": "object",
            "properties": {
                "error": {"type": "boolean"},
                "message": {"type": "string"},
                "code": {"type": "integer"},
                "type": {"type": "string"},
                "details": {"type": "object"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "AppListVideos API",
	Description:      "Video links, lists and live sync views for the signed-in user",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
