//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
)

// contendToken belongs to user 2, seeded with a single remaining use of
// coupon 1.
const contendToken = "dev-token-user-2"

// postApply is a goroutine-safe variant of doPost for the apply endpoint: it
// returns errors instead of failing the test, so concurrent callers can
// collect results and assert on the main goroutine.
func postApply(token string, req applyRequest) (envelope, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return envelope{}, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/api/coupons/apply", bytes.NewReader(data))
	if err != nil {
		return envelope{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, err
	}
	return env, nil
}

func TestListCoupons(t *testing.T) {
	resp := doGet(t, "/api/coupons", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	env := decodeEnvelope(t, resp)
	if !env.Success {
		t.Fatalf("expected success envelope, got errors: %v", env.Errors)
	}

	coupons := decodeData[[]catalogCoupon](t, env)
	if len(coupons) != 2 {
		t.Fatalf("coupons: got %d, want 2", len(coupons))
	}
	if coupons[0].Name != "Coupon 1" || coupons[0].Type != "group" {
		t.Errorf("coupon 1: got %q/%q", coupons[0].Name, coupons[0].Type)
	}
	if len(coupons[0].Limits) != 3 {
		t.Fatalf("coupon 1 tiers: got %d, want 3", len(coupons[0].Limits))
	}
	if coupons[0].Limits[1].Limit != 8 || coupons[0].Limits[1].Price != 22 {
		t.Errorf("tier: got limit=%d price=%v, want 8/22", coupons[0].Limits[1].Limit, coupons[0].Limits[1].Price)
	}
}

func TestUserCoupons_NoAuth(t *testing.T) {
	resp := doGet(t, "/api/user/coupons", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestUserCoupons_BadToken(t *testing.T) {
	resp := doGet(t, "/api/user/coupons", "not-a-real-token")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestUserCoupons(t *testing.T) {
	resp := doGet(t, "/api/user/coupons", testToken)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	env := decodeEnvelope(t, resp)
	if !env.Success {
		t.Fatalf("expected success envelope, got errors: %v", env.Errors)
	}

	balances := decodeData[[]userCoupon](t, env)
	if len(balances) != 2 {
		t.Fatalf("balances: got %d, want 2", len(balances))
	}
	if balances[0].ID != 1 || balances[0].Count != 5 {
		t.Errorf("balance 1: got id=%d count=%d, want 1/5", balances[0].ID, balances[0].Count)
	}
	if balances[1].ID != 2 || balances[1].Count != 0 {
		t.Errorf("balance 2: got id=%d count=%d, want 2/0", balances[1].ID, balances[1].Count)
	}
}

func TestApplyCoupon_ValidationErrors(t *testing.T) {
	resp := doPost(t, "/api/coupons/apply", testToken, map[string]any{})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	env := decodeEnvelope(t, resp)
	if env.Success {
		t.Fatal("expected error envelope")
	}
	if len(env.Errors["coupon_id"]) == 0 || len(env.Errors["lesson_id"]) == 0 {
		t.Errorf("expected coupon_id and lesson_id errors, got %v", env.Errors)
	}
}

func TestApplyCoupon_UnknownLesson(t *testing.T) {
	resp := doPost(t, "/api/coupons/apply", testToken, applyRequest{CouponID: 1, LessonID: 99999})
	defer resp.Body.Close()

	env := decodeEnvelope(t, resp)
	if len(env.Errors["lesson_id"]) == 0 {
		t.Errorf("expected lesson_id error, got %v", env.Errors)
	}
}

func TestApplyCoupon_NoBalance(t *testing.T) {
	// User 1 holds zero uses of coupon 2.
	resp := doPost(t, "/api/coupons/apply", testToken, applyRequest{CouponID: 2, LessonID: 101})
	defer resp.Body.Close()

	env := decodeEnvelope(t, resp)
	if len(env.Errors["coupon_id"]) == 0 {
		t.Errorf("expected coupon_id error, got %v", env.Errors)
	}
}

func TestApplyCoupon_LessonWithoutCourse(t *testing.T) {
	// Lesson 301 is seeded without a course link.
	resp := doPost(t, "/api/coupons/apply", testToken, applyRequest{CouponID: 1, LessonID: 301})
	defer resp.Body.Close()

	env := decodeEnvelope(t, resp)
	if len(env.Errors["course"]) == 0 {
		t.Errorf("expected course error, got %v", env.Errors)
	}
}

func TestApplyCoupon_ConcurrentSingleUse(t *testing.T) {
	// User 2 holds exactly one use of coupon 1. Two parallel redemptions of
	// distinct lessons race for it; the conditional decrement must let
	// exactly one commit.
	lessonIDs := []int64{102, 201}
	envs := make([]envelope, len(lessonIDs))
	errs := make([]error, len(lessonIDs))

	var wg sync.WaitGroup
	for i, lessonID := range lessonIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			envs[i], errs[i] = postApply(contendToken, applyRequest{CouponID: 1, LessonID: lessonID})
		}()
	}
	wg.Wait()

	successes := 0
	for i := range lessonIDs {
		if errs[i] != nil {
			t.Fatalf("apply lesson %d: %v", lessonIDs[i], errs[i])
		}
		if envs[i].Success {
			successes++
			continue
		}
		if len(envs[i].Errors["coupon_id"]) == 0 {
			t.Errorf("loser envelope for lesson %d: got %v, want coupon_id error", lessonIDs[i], envs[i].Errors)
		}
	}
	if successes != 1 {
		t.Fatalf("successes: got %d, want exactly 1", successes)
	}

	resp := doGet(t, "/api/user/coupons", contendToken)
	env := decodeEnvelope(t, resp)
	resp.Body.Close()
	balances := decodeData[[]userCoupon](t, env)
	if len(balances) != 1 || balances[0].Count != 0 {
		t.Errorf("balance after race: got %+v, want single entry with count 0", balances)
	}
}

func TestApplyCoupon_RedeemAndRepeat(t *testing.T) {
	// First redemption succeeds and decrements the balance.
	resp := doPost(t, "/api/coupons/apply", testToken, applyRequest{CouponID: 1, LessonID: 101})
	env := decodeEnvelope(t, resp)
	resp.Body.Close()
	if !env.Success {
		t.Fatalf("first redemption failed: %v", env.Errors)
	}

	resp = doGet(t, "/api/user/coupons", testToken)
	env = decodeEnvelope(t, resp)
	resp.Body.Close()
	balances := decodeData[[]userCoupon](t, env)
	if balances[0].Count != 4 {
		t.Errorf("balance after redeem: got %d, want 4", balances[0].Count)
	}

	// Redeeming the same lesson again is rejected without spending balance.
	resp = doPost(t, "/api/coupons/apply", testToken, applyRequest{CouponID: 1, LessonID: 101})
	env = decodeEnvelope(t, resp)
	resp.Body.Close()
	if len(env.Errors["lesson_id"]) == 0 {
		t.Fatalf("expected lesson_id error on repeat, got %v", env.Errors)
	}

	resp = doGet(t, "/api/user/coupons", testToken)
	env = decodeEnvelope(t, resp)
	resp.Body.Close()
	balances = decodeData[[]userCoupon](t, env)
	if balances[0].Count != 4 {
		t.Errorf("balance after repeat: got %d, want 4 (unchanged)", balances[0].Count)
	}
}
