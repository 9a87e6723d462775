package dto

// RecommendationQuery holds the query parameters of GET /api/recommendations.
type RecommendationQuery struct {
	UserID   string `form:"user_id" binding:"required,uuid"`
	Scenario string `form:"scenario"`
	Limit    int    `form:"limit"`
}

// TrendingQuery holds the query parameters of GET /api/trending.
type TrendingQuery struct {
	Area  string `form:"area"`
	Limit int    `form:"limit"`
}
