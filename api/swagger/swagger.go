package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Swiss Arbiter API",
        "description": "Swiss-system tournament engine: round lifecycle, pairings, results, standings and ratings.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Tournaments",
            "description": "Tournament administration"
        },
        {
            "name": "Players",
            "description": "Player registration and status"
        },
        {
            "name": "Rounds",
            "description": "Round lifecycle"
        },
        {
            "name": "Pairings",
            "description": "Pairing proposals and confirmation"
        },
        {
            "name": "Results",
            "description": "Result entry, approval and audit"
        },
        {
            "name": "Standings",
            "description": "Derived standings"
        },
        {
            "name": "Ratings",
            "description": "Elo ratings"
        },
        {
            "name": "Live",
            "description": "Realtime tournament events"
        }
    ],
    "paths": {
        "/tournaments": {
            "post": {
                "tags": [
                    "Tournaments"
                ],
                "summary": "Create tournament",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateTournamentRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid arbiter token",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/tournaments/{id}": {
            "get": {
                "tags": [
                    "Tournaments"
                ],
                "summary": "Tournament with players and rounds",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/tournaments/{id}/players": {
            "post": {
                "tags": [
                    "Players"
                ],
                "summary": "Register player",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RegisterPlayerRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid arbiter token",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "get": {
                "tags": [
                    "Players"
                ],
                "summary": "List players by rating",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/players/{id}/status": {
            "patch": {
                "tags": [
                    "Players"
                ],
                "summary": "Change player status",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdatePlayerStatusRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid arbiter token",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/players/{id}/ratings": {
            "get": {
                "tags": [
                    "Ratings"
                ],
                "summary": "Rating history of a player",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/tournaments/{id}/rounds": {
            "post": {
                "tags": [
                    "Rounds"
                ],
                "summary": "Create round",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateRoundRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Round number already exists or out of sequence",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid arbiter token",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "get": {
                "tags": [
                    "Rounds"
                ],
                "summary": "List rounds",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/tournaments/{id}/rounds/next": {
            "post": {
                "tags": [
                    "Rounds"
                ],
                "summary": "Create the next round",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid arbiter token",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/rounds/{id}": {
            "get": {
                "tags": [
                    "Rounds"
                ],
                "summary": "Round with games",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/rounds/{id}/status": {
            "patch": {
                "tags": [
                    "Rounds"
                ],
                "summary": "Transition round status",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateRoundStatusRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Stale expected status or illegal transition",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid arbiter token",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/rounds/{id}/complete": {
            "post": {
                "tags": [
                    "Rounds"
                ],
                "summary": "Complete round and apply ratings",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Stale expected status or illegal transition",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid arbiter token",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/tournaments/{id}/rounds/{number}/pairings/generate": {
            "post": {
                "tags": [
                    "Pairings"
                ],
                "summary": "Generate pairing proposal",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "number",
                        "in": "path",
                        "required": true,
                        "type": "integer"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/GeneratePairingsRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "No valid pairing",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/tournaments/{id}/rounds/{number}/pairings/confirm": {
            "post": {
                "tags": [
                    "Pairings"
                ],
                "summary": "Confirm pairings as games",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "number",
                        "in": "path",
                        "required": true,
                        "type": "integer"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ConfirmPairingsRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Stale expected status",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "Relaxation not accepted",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid arbiter token",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/games/{id}/result/validate": {
            "post": {
                "tags": [
                    "Results"
                ],
                "summary": "Validate a result without saving",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ValidateResultRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/tournaments/{id}/results/batch": {
            "post": {
                "tags": [
                    "Results"
                ],
                "summary": "Validate or apply a result batch",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/BatchResultRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Batch rejected; data carries per-item results",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid arbiter token",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/games/{id}/approve": {
            "post": {
                "tags": [
                    "Results"
                ],
                "summary": "Approve an irregular result",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Game has no result",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid arbiter token",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/games/{id}/audit": {
            "get": {
                "tags": [
                    "Results"
                ],
                "summary": "Result audit trail",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/tournaments/{id}/standings": {
            "get": {
                "tags": [
                    "Standings"
                ],
                "summary": "Tournament standings",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "throughRound",
                        "in": "query",
                        "type": "integer",
                        "description": "Count rounds up to this number; 0 means all"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/ratings/change": {
            "post": {
                "tags": [
                    "Ratings"
                ],
                "summary": "Calculate an Elo rating change",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RatingChangeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/tournaments/{id}/live": {
            "get": {
                "tags": [
                    "Live"
                ],
                "summary": "Websocket feed of tournament events",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "101": {
                        "description": "Switching Protocols"
                    }
                }
            }
        }
    },
    "definitions": {
        "CreateTournamentRequest": {
            "type": "object",
            "properties": {
                "name": {
                    "type": "string"
                },
                "totalRounds": {
                    "type": "integer"
                },
                "pairingSystem": {
                    "type": "string",
                    "enum": [
                        "dutch",
                        "adjacent"
                    ]
                },
                "tiebreaks": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "byePoints": {
                    "type": "number"
                },
                "byeBuchholzPolicy": {
                    "type": "string",
                    "enum": [
                        "own_score",
                        "zero",
                        "average"
                    ]
                },
                "missedRoundPointPolicy": {
                    "type": "string",
                    "enum": [
                        "zero",
                        "half",
                        "full"
                    ]
                },
                "allowRematches": {
                    "type": "boolean"
                }
            },
            "required": [
                "name",
                "totalRounds",
                "missedRoundPointPolicy"
            ]
        },
        "RegisterPlayerRequest": {
            "type": "object",
            "properties": {
                "name": {
                    "type": "string"
                },
                "rating": {
                    "type": "integer"
                },
                "status": {
                    "type": "string",
                    "enum": [
                        "active",
                        "late_entry"
                    ]
                },
                "joinedRound": {
                    "type": "integer"
                }
            },
            "required": [
                "name",
                "rating"
            ]
        },
        "UpdatePlayerStatusRequest": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string",
                    "enum": [
                        "active",
                        "withdrawn",
                        "bye_requested",
                        "late_entry"
                    ]
                }
            },
            "required": [
                "status"
            ]
        },
        "CreateRoundRequest": {
            "type": "object",
            "properties": {
                "roundNumber": {
                    "type": "integer"
                }
            },
            "required": [
                "roundNumber"
            ]
        },
        "UpdateRoundStatusRequest": {
            "type": "object",
            "properties": {
                "expectedStatus": {
                    "type": "string"
                },
                "status": {
                    "type": "string",
                    "enum": [
                        "planned",
                        "pairing",
                        "published",
                        "in_progress",
                        "finishing",
                        "completed",
                        "verified"
                    ]
                }
            },
            "required": [
                "expectedStatus",
                "status"
            ]
        },
        "GeneratePairingsRequest": {
            "type": "object",
            "properties": {
                "method": {
                    "type": "string",
                    "enum": [
                        "dutch",
                        "adjacent"
                    ]
                },
                "options": {
                    "type": "object",
                    "properties": {
                        "avoidRematches": {
                            "type": "boolean"
                        },
                        "balanceColors": {
                            "type": "boolean"
                        },
                        "allowByes": {
                            "type": "boolean"
                        }
                    }
                }
            }
        },
        "ConfirmPairingsRequest": {
            "type": "object",
            "properties": {
                "proposalId": {
                    "type": "string"
                },
                "expectedStatus": {
                    "type": "string"
                },
                "acceptRelaxations": {
                    "type": "boolean"
                },
                "pairings": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "whitePlayerId": {
                                "type": "string"
                            },
                            "blackPlayerId": {
                                "type": "string"
                            }
                        }
                    }
                }
            },
            "required": [
                "expectedStatus"
            ]
        },
        "ValidateResultRequest": {
            "type": "object",
            "properties": {
                "result": {
                    "type": "string",
                    "enum": [
                        "white_wins",
                        "black_wins",
                        "draw",
                        "double_loss",
                        "unplayed"
                    ]
                },
                "resultType": {
                    "type": "string",
                    "enum": [
                        "normal",
                        "forfeit",
                        "timeout",
                        "bye",
                        "default",
                        "adjourned",
                        "double_forfeit",
                        "cancelled"
                    ]
                },
                "reason": {
                    "type": "string"
                },
                "arbiterNotes": {
                    "type": "string"
                }
            },
            "required": [
                "result"
            ]
        },
        "BatchResultRequest": {
            "type": "object",
            "properties": {
                "validateOnly": {
                    "type": "boolean"
                },
                "updates": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "gameId": {
                                "type": "string"
                            },
                            "result": {
                                "type": "string"
                            },
                            "resultType": {
                                "type": "string"
                            },
                            "reason": {
                                "type": "string"
                            },
                            "arbiterNotes": {
                                "type": "string"
                            }
                        }
                    }
                }
            },
            "required": [
                "updates"
            ]
        },
        "RatingChangeRequest": {
            "type": "object",
            "properties": {
                "playerRating": {
                    "type": "integer"
                },
                "opponentRating": {
                    "type": "integer"
                },
                "score": {
                    "type": "number",
                    "enum": [
                        0,
                        0.5,
                        1
                    ]
                }
            },
            "required": [
                "playerRating",
                "opponentRating",
                "score"
            ]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                },
                "details": {
                    "type": "object"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "meta": {
                    "type": "object"
                }
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
