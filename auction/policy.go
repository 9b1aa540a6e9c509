package auction

import "strings"

// Identity 是身份提供者驗證過的呼叫者身份，核心邏輯直接信任這組資料
type Identity struct {
	UID   string
	Email string
}

// Policy 決定呼叫者是否具備管理員權限。
// 所有需要授權的路徑（結標、建立、刪除商品）共用同一個 Policy，
// 避免各處散落大小寫不一致的信箱比對。
type Policy func(caller Identity) bool

// AdminOnly 建立一個只允許指定管理員信箱的 Policy，比對時忽略大小寫
func AdminOnly(adminEmail string) Policy {
	admin := strings.ToLower(strings.TrimSpace(adminEmail))
	return func(caller Identity) bool {
		if admin == "" {
			return false
		}
		return strings.ToLower(strings.TrimSpace(caller.Email)) == admin
	}
}
