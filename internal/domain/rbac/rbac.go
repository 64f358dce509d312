// Пакет rbac — вычисление ролей вызывающего из claims Keycloak.
// Роли = realm_access.roles ∪ роли, полученные из групп по маппингу group → role.
// Сравнение ролей нечувствительно к регистру и к префиксу ROLE_.
package rbac

import "strings"

// rolePrefix — префикс ролей в стиле Spring Security (ROLE_MODERATOR).
const rolePrefix = "ROLE_"

// RoleModerator — роль по умолчанию для доступа к управлению пользователями.
const RoleModerator = "MODERATOR"

// Normalize приводит имя роли к каноническому виду: без ROLE_ и в верхнем регистре.
func Normalize(role string) string {
	r := strings.ToUpper(strings.TrimSpace(role))
	return strings.TrimPrefix(r, rolePrefix)
}

// MapGroupsToRoles возвращает роли, соответствующие группам пользователя.
// Группы Keycloak могут приходить в виде пути (/moderators) — ведущий слэш игнорируется.
// Порядок соответствует порядку групп, дубликаты исключаются.
func MapGroupsToRoles(groups []string, groupRoles map[string]string) []string {
	if len(groupRoles) == 0 {
		return nil
	}

	var roles []string
	seen := make(map[string]bool)
	for _, g := range groups {
		role, ok := groupRoles[strings.TrimPrefix(g, "/")]
		if !ok {
			continue
		}
		n := Normalize(role)
		if !seen[n] {
			seen[n] = true
			roles = append(roles, n)
		}
	}
	return roles
}

// EffectiveRoles объединяет realm-роли и роли из групп.
// Результат нормализован и не содержит дубликатов.
func EffectiveRoles(realmRoles, groups []string, groupRoles map[string]string) []string {
	seen := make(map[string]bool, len(realmRoles))
	result := make([]string, 0, len(realmRoles))

	add := func(r string) {
		n := Normalize(r)
		if n == "" || seen[n] {
			return
		}
		seen[n] = true
		result = append(result, n)
	}

	for _, r := range realmRoles {
		add(r)
	}
	for _, r := range MapGroupsToRoles(groups, groupRoles) {
		add(r)
	}
	return result
}

// HasAnyRole проверяет, содержит ли набор ролей хотя бы одну из требуемых.
func HasAnyRole(roles []string, required ...string) bool {
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[Normalize(r)] = true
	}
	for _, r := range required {
		if set[Normalize(r)] {
			return true
		}
	}
	return false
}
