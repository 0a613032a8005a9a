package dto

// PageDTO metadatos de página en respuestas paginadas.
type PageDTO struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPageDTO calcula el total de páginas.
func NewPageDTO(page, pageSize, total int) *PageDTO {
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return &PageDTO{Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}

// PeriodDTO rango de fechas del informe.
type PeriodDTO struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// ErrorResponse cuerpo de error HTTP.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
