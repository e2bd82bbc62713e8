package validation

import (
	"testing"
)

func TestValidate_NilParams(t *testing.T) {
	if Validate(nil, Schema{"x": NonEmptyString()}, false) {
		t.Fatal("expected nil params to be invalid")
	}
}

func TestNonEmptyString(t *testing.T) {
	schema := Schema{"client_id": NonEmptyString()}

	if !Validate(map[string]string{"client_id": "abc"}, schema, false) {
		t.Fatal("expected valid")
	}
	if Validate(map[string]string{"client_id": ""}, schema, false) {
		t.Fatal("expected empty value to be invalid")
	}
	if Validate(map[string]string{}, schema, false) {
		t.Fatal("expected missing key to be invalid")
	}
}

func TestOptional(t *testing.T) {
	schema := Schema{"state": Optional(NonEmptyString())}

	if !Validate(map[string]string{}, schema, false) {
		t.Fatal("expected missing optional key to be valid")
	}
	if !Validate(map[string]string{"state": "opaque"}, schema, false) {
		t.Fatal("expected present optional value to be valid")
	}
	if Validate(map[string]string{"state": ""}, schema, false) {
		t.Fatal("expected present-but-empty optional value to be invalid")
	}
}

func TestLiteral(t *testing.T) {
	schema := Schema{"grant_type": Literal("refresh_token")}

	if !Validate(map[string]string{"grant_type": "refresh_token"}, schema, false) {
		t.Fatal("expected exact literal to be valid")
	}
	if Validate(map[string]string{"grant_type": "authorization_code"}, schema, false) {
		t.Fatal("expected different literal to be invalid")
	}
	if Validate(map[string]string{}, schema, false) {
		t.Fatal("expected missing literal to be invalid")
	}
}

func TestValidate_UnknownParamsIgnored(t *testing.T) {
	schema := Schema{"client_id": NonEmptyString()}
	params := map[string]string{"client_id": "abc", "extra": "whatever"}
	if !Validate(params, schema, false) {
		t.Fatal("expected unknown params to be ignored")
	}
}

func TestAuthorizeGetSchema(t *testing.T) {
	valid := map[string]string{
		"response_type": "code",
		"client_id":     "abc",
		"redirect_uri":  "https://app.example.com/cb",
	}
	if !Validate(valid, AuthorizeGet(), false) {
		t.Fatal("expected minimal GET params to be valid")
	}

	missing := map[string]string{
		"client_id":    "abc",
		"redirect_uri": "https://app.example.com/cb",
	}
	if Validate(missing, AuthorizeGet(), false) {
		t.Fatal("expected missing response_type to be invalid")
	}
}

func TestAccessTokenPostSchema(t *testing.T) {
	valid := map[string]string{
		"grant_type":    "authorization_code",
		"code":          "abc",
		"redirect_uri":  "https://app.example.com/cb",
		"client_id":     "cid",
		"client_secret": "secret",
	}
	if !Validate(valid, AccessTokenPost(), false) {
		t.Fatal("expected code-exchange params to be valid")
	}
	delete(valid, "client_secret")
	if Validate(valid, AccessTokenPost(), false) {
		t.Fatal("expected missing client_secret to be invalid")
	}
}

func TestRefreshTokenPostSchema(t *testing.T) {
	valid := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": "rt",
	}
	if !Validate(valid, RefreshTokenPost(), false) {
		t.Fatal("expected refresh params without client credentials to be valid")
	}
	valid["grant_type"] = "authorization_code"
	if Validate(valid, RefreshTokenPost(), false) {
		t.Fatal("expected wrong grant_type literal to be invalid")
	}
}
