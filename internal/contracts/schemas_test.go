package contracts

import "testing"

func TestValidateStatementsPayloadAccepts(t *testing.T) {
	body := []byte(`{
		"result": true,
		"data": {
			"data": [
				{"id": 1, "real_estate_type_id": 1, "deal_type_id": 2,
				 "price": {"1": {"price_total": 1200, "price_square": 20}}}
			],
			"current_page": 1,
			"last_page": 4
		}
	}`)
	if err := ValidateStatementsPayload(body); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}
}

func TestValidateStatementsPayloadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>maintenance</html>`},
		{"missing data", `{"result": true}`},
		{"statement without id", `{"result": true, "data": {"data": [{"comment": "x"}]}}`},
		{"id zero", `{"result": true, "data": {"data": [{"id": 0}]}}`},
		{"negative price", `{"result": true, "data": {"data": [{"id": 5, "price": {"1": {"price_total": -3}}}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStatementsPayload([]byte(tt.body)); err == nil {
				t.Error("invalid payload accepted")
			}
		})
	}
}

func TestValidateStatementsPayloadAllowsEmptyPage(t *testing.T) {
	body := []byte(`{"result": true, "data": {"data": []}}`)
	if err := ValidateStatementsPayload(body); err != nil {
		t.Errorf("empty page rejected: %v", err)
	}
}
