package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Scholarship Application API",
        "description": "Scholarship application management: wizard, recommendations, evaluations and reporting",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Authentication and session management"},
        {"name": "Applications", "description": "Scholarship application wizard and lifecycle"},
        {"name": "Recommendations", "description": "Recommendation requests and recommender portal"},
        {"name": "Evaluations", "description": "Committee evaluations and rankings"},
        {"name": "Dashboard", "description": "Aggregated administrative overview"},
        {"name": "Reports", "description": "Asynchronous report exports"},
        {"name": "Files", "description": "Document uploads and signed downloads"},
        {"name": "Admin", "description": "User administration and audit trail"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate with email and password",
                "responses": {
                    "200": {"description": "Token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a refresh token for a new token pair",
                "responses": {
                    "200": {"description": "Token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current authenticated user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "User profile", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications": {
            "post": {
                "tags": ["Applications"],
                "summary": "Create or return the caller's draft application",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Application", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Applications"],
                "summary": "List applications with filtering and pagination",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Applications", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/steps/{step}": {
            "put": {
                "tags": ["Applications"],
                "summary": "Save data for a wizard step",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Updated application", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Step not writable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/checklist": {
            "get": {
                "tags": ["Applications"],
                "summary": "Submission eligibility checklist",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Checklist", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/submit": {
            "post": {
                "tags": ["Applications"],
                "summary": "Submit a complete application",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Submitted application", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already submitted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Unmet requirements", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/withdraw": {
            "post": {
                "tags": ["Applications"],
                "summary": "Withdraw an application",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Withdrawn application", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Decision already recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/status": {
            "patch": {
                "tags": ["Applications"],
                "summary": "Transition application status (admin)",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Updated application", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Illegal transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/recommendations": {
            "post": {
                "tags": ["Recommendations"],
                "summary": "Invite a recommender",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Recommendation request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Live request quota reached", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Recommendations"],
                "summary": "List recommendation requests for an application",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Recommendations", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/recommend/{token}": {
            "get": {
                "tags": ["Recommendations"],
                "summary": "Resolve a recommender portal token",
                "responses": {
                    "200": {"description": "Portal context", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Recommendations"],
                "summary": "Submit a recommendation letter",
                "responses": {
                    "200": {"description": "Submitted recommendation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Letter already submitted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/evaluations": {
            "put": {
                "tags": ["Evaluations"],
                "summary": "Submit or replace the caller's evaluation",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Evaluation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Application not open for evaluation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Evaluations"],
                "summary": "List evaluations for an application (admin)",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Evaluations", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/evaluations/rankings": {
            "get": {
                "tags": ["Evaluations"],
                "summary": "Ranked applications by aggregate rating",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Rankings", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/evaluations/progress": {
            "get": {
                "tags": ["Evaluations"],
                "summary": "Committee evaluation progress",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Progress", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/dashboard/admin": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Aggregated admin dashboard",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Dashboard sections", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Queue an asynchronous report export",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "202": {"description": "Queued job", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Report job status and result link",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Job status", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a finished report by signed token",
                "responses": {
                    "200": {"description": "Report file"},
                    "410": {"description": "Link expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/files": {
            "post": {
                "tags": ["Files"],
                "summary": "Upload an application document",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Stored file metadata", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/files/{token}": {
            "get": {
                "tags": ["Files"],
                "summary": "Download a document by signed token",
                "responses": {
                    "200": {"description": "File contents"},
                    "410": {"description": "Link expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users": {
            "get": {
                "tags": ["Admin"],
                "summary": "List users",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Users", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Admin"],
                "summary": "Create user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "User", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit-logs": {
            "get": {
                "tags": ["Admin"],
                "summary": "List audit log entries",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Audit entries", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/metrics": {
            "get": {
                "tags": ["Admin"],
                "summary": "System metrics snapshot",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Metrics", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
