package graph

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lvdashuaibi/planningpoker/internal/auth"
)

func TestTokenTimesBeyond2038(t *testing.T) {
	origIat := time.Date(2040, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := origIat.Add(5 * time.Minute)
	refreshUntil := origIat.Add(168 * time.Hour)

	claims := &auth.Claims{
		Username:         "alice",
		OrigIat:          origIat.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	}
	payload := &TokenPayloadResolver{token: &auth.Token{Token: "t", Payload: claims, RefreshExpiresIn: refreshUntil.Unix()}}

	tests := []struct {
		name string
		got  float64
		want int64
	}{
		{"exp", payload.Payload().Exp(), exp.Unix()},
		{"origIat", payload.Payload().OrigIat(), origIat.Unix()},
		{"refreshExpiresIn", payload.RefreshExpiresIn(), refreshUntil.Unix()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if int64(tt.got) != tt.want {
				t.Errorf("%s = %v, want %d", tt.name, tt.got, tt.want)
			}
		})
	}

	if (&JWTPayloadResolver{claims: &auth.Claims{}}).Exp() != 0 {
		t.Error("缺少exp时应返回0")
	}
}
