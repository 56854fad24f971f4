package repository

// Logical key layout shared by all repositories.
const (
	affiliatesSetKey = "users:affiliates"
	adminsSetKey     = "users:admins"
	globalStatsKey   = "stats:global"

	fieldTotalAffiliates = "totalAffiliates"
	fieldTotalReferrals  = "totalReferrals"
)

func userKey(id string) string { return "user:" + id }
func emailIndexKey(email string) string { return "user:email:" + email }
func refCodeIndexKey(code string) string { return "user:referral:" + code }
func sessionKey(id string) string { return "session:" + id }
func resetKey(userID string) string { return "passwordReset:" + userID }
func inviteKey(code string) string { return "invite:" + code }
func referralKey(id string) string { return "referral:" + id }
func referralsByRefKey(code string) string { return "referrals:byRef:" + code }
