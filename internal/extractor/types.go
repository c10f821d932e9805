package extractor

// Тело запроса images:annotate
type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"` // base64 изображения
}

type feature struct {
	Type string `json:"type"`
}

// Ответ images:annotate, используются только поля с текстом и ошибкой
type annotateResponse struct {
	Responses []imageResponse `json:"responses"`
}

type imageResponse struct {
	FullTextAnnotation *struct {
		Text string `json:"text"`
	} `json:"fullTextAnnotation,omitempty"`
	TextAnnotations []struct {
		Description string `json:"description"`
	} `json:"textAnnotations,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r imageResponse) text() string {
	if r.FullTextAnnotation != nil && r.FullTextAnnotation.Text != "" {
		return r.FullTextAnnotation.Text
	}
	if len(r.TextAnnotations) > 0 {
		return r.TextAnnotations[0].Description
	}
	return ""
}
