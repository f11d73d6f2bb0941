package handlers

import (
	"encoding/json"
	"net/http"
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the Crash Analytics API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Crash Analytics API",
			"description": "Victorian road crash statistics API with factor aggregation, trend analysis, forecasting, and spatial density endpoints backed by PostGIS",
			"version":     "1.0.0",
			"contact": map[string]string{
				"name": "Crash Analytics Team",
			},
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/factor_counts": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get crash counts by contributing factor",
					"description": "Aggregate crash counts into factor categories, split by severity, optionally scoped to a statistical area",
					"parameters": []map[string]interface{}{
						{
							"name":        "factor",
							"in":          "query",
							"description": "Factor identifier (time_bucket, light_condition, road_geometry, speed_zone, atmospheric_condition, sex, age_group, helmet_belt_worn)",
							"required":    true,
							"schema":      map[string]string{"type": "string"},
						},
						{
							"name":        "sa_level",
							"in":          "query",
							"description": "Statistical area level (sa2, sa3, sa4); requires sa_name",
							"required":    false,
							"schema":      map[string]string{"type": "string"},
						},
						{
							"name":        "sa_name",
							"in":          "query",
							"description": "Statistical area name; requires sa_level",
							"required":    false,
							"schema":      map[string]string{"type": "string"},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "array",
										"items": map[string]interface{}{
											"type": "object",
											"properties": map[string]interface{}{
												"category": map[string]string{"type": "string"},
												"severity": map[string]string{"type": "string"},
												"count":    map[string]string{"type": "integer"},
											},
										},
									},
								},
							},
						},
						"400": map[string]interface{}{
							"description": "Unknown factor identifier or invalid area scope",
						},
					},
				},
			},
			"/trends/yearly": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get yearly crash totals",
					"description": "Crashes, total injuries, and serious injuries per observed year in the range",
					"parameters": []map[string]interface{}{
						{
							"name":        "year_from",
							"in":          "query",
							"description": "First year of the range (default: 2020)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 2020},
						},
						{
							"name":        "year_to",
							"in":          "query",
							"description": "Last year of the range (default: 2024)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 2024},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "array",
										"items": map[string]interface{}{
											"type": "object",
											"properties": map[string]interface{}{
												"year":             map[string]string{"type": "integer"},
												"crashes":          map[string]string{"type": "integer"},
												"total_injuries":   map[string]string{"type": "integer"},
												"serious_injuries": map[string]string{"type": "integer"},
											},
										},
									},
								},
							},
						},
					},
				},
			},
			"/trends/monthly": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get monthly crash totals for one year",
					"description": "Twelve rows per year, months without crashes zero-filled",
					"parameters": []map[string]interface{}{
						{
							"name":        "year",
							"in":          "query",
							"description": "Calendar year",
							"required":    true,
							"schema":      map[string]string{"type": "integer"},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
						},
						"400": map[string]interface{}{
							"description": "Missing or invalid year",
						},
					},
				},
			},
			"/forecast/yearly": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Forecast next-year crash totals",
					"description": "Fits OLS or historical-mean models over the observed range and projects one target year",
					"parameters": []map[string]interface{}{
						{
							"name":        "year_from",
							"in":          "query",
							"description": "First history year (default: 2012)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 2012},
						},
						{
							"name":        "year_to",
							"in":          "query",
							"description": "Last history year (default: 2024)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 2024},
						},
						{
							"name":        "target_year",
							"in":          "query",
							"description": "Year to project (default: 2025)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 2025},
						},
						{
							"name":        "method",
							"in":          "query",
							"description": "Forecast method: ols or mean (default: ols)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "string", "default": "ols"},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
						},
						"404": map[string]interface{}{
							"description": "No crash data in the requested history range",
						},
					},
				},
			},
			"/accident_stats": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Get per-area accident statistics",
					"description": "Counts, densities, and centroids for statistical areas within a filter area",
					"requestBody": map[string]interface{}{
						"required": true,
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"filter_area_level":   map[string]string{"type": "string"},
										"filter_area_name":    map[string]string{"type": "string"},
										"group_by_area_level": map[string]string{"type": "string"},
										"date_from":           map[string]string{"type": "string", "format": "date"},
										"date_to":             map[string]string{"type": "string", "format": "date"},
									},
								},
							},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Successful response"},
						"400": map[string]interface{}{"description": "Group level coarser than the filter level, or unknown level"},
					},
				},
			},
			"/road_accident_density": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Get per-road accident densities",
					"description": "Matches accidents in an area to the nearest road of the requested type and reports per-kilometre densities",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Successful response"},
						"400": map[string]interface{}{"description": "Invalid area level or road type"},
					},
				},
			},
			"/distinct_sa2": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List distinct SA2 names",
					"description": "Sorted distinct SA2 statistical area names from the mesh block table",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type":  "array",
										"items": map[string]string{"type": "string"},
									},
								},
							},
						},
					},
				},
			},
			"/distinct_sa3": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List distinct SA3 names",
					"description": "Sorted distinct SA3 statistical area names from the mesh block table",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Successful response"},
					},
				},
			},
			"/distinct_sa4": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List distinct SA4 names",
					"description": "Sorted distinct SA4 statistical area names from the mesh block table",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Successful response"},
					},
				},
			},
			"/max_accident_date": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get the latest accident date",
					"description": "Date of the most recent accident in the store, null when empty",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"max_accident_date": map[string]interface{}{"type": "string", "format": "date", "nullable": true},
										},
									},
								},
							},
						},
					},
				},
			},
			"/corridor_crash_density": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get per-segment crash densities along a road corridor",
					"description": "Splits a named road within a region into segments and reports crash counts and per-kilometre densities",
					"parameters": []map[string]interface{}{
						{
							"name":        "region_level",
							"in":          "query",
							"description": "Statistical area level (sa2, sa3)",
							"required":    true,
							"schema":      map[string]string{"type": "string"},
						},
						{
							"name":        "region_name",
							"in":          "query",
							"description": "Statistical area name",
							"required":    true,
							"schema":      map[string]string{"type": "string"},
						},
						{
							"name":        "road_name",
							"in":          "query",
							"description": "Road name to match (case-insensitive)",
							"required":    true,
							"schema":      map[string]string{"type": "string"},
						},
						{
							"name":     "start_date",
							"in":       "query",
							"required": true,
							"schema":   map[string]string{"type": "string", "format": "date"},
						},
						{
							"name":     "end_date",
							"in":       "query",
							"required": true,
							"schema":   map[string]string{"type": "string", "format": "date"},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Successful response"},
						"400": map[string]interface{}{"description": "Missing required parameters or invalid region level"},
					},
				},
			},
			"/blackspot_crash_density": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get crash counts around road structures",
					"description": "Counts crashes near road structures (intersections, bridges, level crossings) along a named road",
					"parameters": []map[string]interface{}{
						{
							"name":        "region_level",
							"in":          "query",
							"description": "Statistical area level (sa2, sa3)",
							"required":    true,
							"schema":      map[string]string{"type": "string"},
						},
						{
							"name":        "region_name",
							"in":          "query",
							"description": "Statistical area name",
							"required":    true,
							"schema":      map[string]string{"type": "string"},
						},
						{
							"name":        "road_name",
							"in":          "query",
							"description": "Road name to match (case-insensitive)",
							"required":    true,
							"schema":      map[string]string{"type": "string"},
						},
						{
							"name":        "structure_types",
							"in":          "query",
							"description": "Structure type codes to include (repeatable)",
							"required":    false,
							"schema": map[string]interface{}{
								"type":  "array",
								"items": map[string]string{"type": "string"},
							},
						},
						{
							"name":     "start_date",
							"in":       "query",
							"required": true,
							"schema":   map[string]string{"type": "string", "format": "date"},
						},
						{
							"name":     "end_date",
							"in":       "query",
							"required": true,
							"schema":   map[string]string{"type": "string", "format": "date"},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Successful response"},
						"400": map[string]interface{}{"description": "Unknown structure type or invalid region level"},
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Check if the API and its database are reachable",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "API is healthy",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"status": map[string]string{"type": "string"},
										},
									},
								},
							},
						},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
