package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"thought_engine/models"
	"thought_engine/services"
	"thought_engine/utils"
)

// insightParams 读取并校验 userID 与洞察 ID
func insightParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	userID := chi.URLParam(r, "userID")
	id := chi.URLParam(r, "id")
	if !utils.ValidateParam(w, "userID", userID) || !utils.ValidateParam(w, "id", id) {
		return "", "", false
	}
	return userID, id, true
}

// SaveInsightHandler godoc
// @Summary 直接保存一条洞察
// @Description 保存已确认的生成结果（例如综合结果），返回新记录 ID
// @Tags 洞察库
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Param body body models.SaveInsightRequest true "洞察内容"
// @Success 200 {object} models.APIResponse{data=models.SaveInsightResponse} "成功"
// @Failure 400 {object} models.APIResponse "参数错误或存储失败"
// @Router /api/insights/{userID} [post]
func SaveInsightHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID := chi.URLParam(r, "userID")
	if !utils.ValidateParam(w, "userID", userID) {
		return
	}
	var req models.SaveInsightRequest
	if !utils.DecodeJSONBody(w, r, &req) {
		return
	}

	id, err := engine.SaveInsight(r.Context(), userID, req.SourceText, req.Payload, req.Themes)
	if err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, models.SaveInsightResponse{ID: id})
}

// QueryInsightsHandler godoc
// @Summary 按条件查询洞察
// @Description 条件之间为“且”关系；theme 命中任意一个即可；未指定 archived 时不返回已归档记录
// @Tags 洞察库
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Param starred query bool false "是否收藏"
// @Param archived query bool false "是否归档"
// @Param theme query string false "主题，可重复或逗号分隔"
// @Param from query string false "起始时间 RFC3339（含）"
// @Param to query string false "结束时间 RFC3339（含）"
// @Param limit query int false "最多返回条数"
// @Success 200 {object} models.APIResponse{data=[]models.StoredInsight} "成功，按创建时间倒序"
// @Router /api/insights/{userID} [get]
func QueryInsightsHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID := chi.URLParam(r, "userID")
	if !utils.ValidateParam(w, "userID", userID) {
		return
	}
	filter, err := utils.ParseInsightFilter(r)
	if err != nil {
		utils.HandleServiceError(w, err)
		return
	}

	insights, err := engine.QueryInsights(r.Context(), userID, filter)
	if err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, insights)
}

// SearchInsightsHandler godoc
// @Summary 全文搜索洞察
// @Description 不区分大小写，匹配原文、检索词与主题；不返回已归档记录；q 为空时等同于无条件查询
// @Tags 洞察库
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Param q query string false "搜索词"
// @Success 200 {object} models.APIResponse{data=[]models.StoredInsight} "成功"
// @Router /api/insights/{userID}/search [get]
func SearchInsightsHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID := chi.URLParam(r, "userID")
	if !utils.ValidateParam(w, "userID", userID) {
		return
	}

	insights, err := engine.SearchInsights(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, insights)
}

// GetInsightHandler godoc
// @Summary 获取一条洞察
// @Tags 洞察库
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Param id path string true "洞察ID"
// @Success 200 {object} models.APIResponse{data=models.StoredInsight} "成功"
// @Failure 400 {object} models.APIResponse "洞察不存在"
// @Router /api/insights/{userID}/{id} [get]
func GetInsightHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID, id, ok := insightParams(w, r)
	if !ok {
		return
	}

	insight, err := engine.GetInsight(r.Context(), userID, id)
	if err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, insight)
}

// UpdateInsightHandler godoc
// @Summary 局部更新洞察
// @Description 只合并请求中出现的字段；已归档的记录只允许修改收藏状态
// @Tags 洞察库
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Param id path string true "洞察ID"
// @Param body body models.InsightPatch true "需要修改的字段"
// @Success 200 {object} models.APIResponse{data=models.StoredInsight} "成功"
// @Failure 400 {object} models.APIResponse "洞察不存在或已归档"
// @Router /api/insights/{userID}/{id} [patch]
func UpdateInsightHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID, id, ok := insightParams(w, r)
	if !ok {
		return
	}
	var patch models.InsightPatch
	if !utils.DecodeJSONBody(w, r, &patch) {
		return
	}

	insight, err := engine.UpdateInsight(r.Context(), userID, id, patch)
	if err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, insight)
}

// ToggleStarHandler godoc
// @Summary 切换收藏状态
// @Tags 洞察库
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Param id path string true "洞察ID"
// @Success 200 {object} models.APIResponse{data=models.ToggleStarResponse} "成功"
// @Router /api/insights/{userID}/{id}/star [post]
func ToggleStarHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID, id, ok := insightParams(w, r)
	if !ok {
		return
	}

	starred, err := engine.ToggleStar(r.Context(), userID, id)
	if err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, models.ToggleStarResponse{ID: id, Starred: starred})
}

// ArchiveInsightHandler godoc
// @Summary 归档洞察
// @Description 归档后默认查询与搜索不再返回该记录，且无法取消归档
// @Tags 洞察库
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Param id path string true "洞察ID"
// @Success 200 {object} models.APIResponse "成功"
// @Router /api/insights/{userID}/{id}/archive [post]
func ArchiveInsightHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID, id, ok := insightParams(w, r)
	if !ok {
		return
	}

	if err := engine.ArchiveInsight(r.Context(), userID, id); err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"id": id, "archived": true})
}

// DeleteInsightHandler godoc
// @Summary 删除洞察
// @Description 物理删除，之后任何操作都会返回洞察不存在
// @Tags 洞察库
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Param id path string true "洞察ID"
// @Success 200 {object} models.APIResponse "成功"
// @Router /api/insights/{userID}/{id} [delete]
func DeleteInsightHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID, id, ok := insightParams(w, r)
	if !ok {
		return
	}

	if err := engine.DeleteInsight(r.Context(), userID, id); err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"id": id})
}

// TrackActionHandler godoc
// @Summary 记录用户动作
// @Description kind 取值 calendar、social、task、followup，记录追加到对应列表
// @Tags 洞察库
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Param id path string true "洞察ID"
// @Param kind path string true "动作类型"
// @Param body body models.TrackActionRequest false "动作内容"
// @Success 200 {object} models.APIResponse "成功"
// @Router /api/insights/{userID}/{id}/actions/{kind} [post]
func TrackActionHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID, id, ok := insightParams(w, r)
	if !ok {
		return
	}
	kind := chi.URLParam(r, "kind")
	if !utils.ValidateParam(w, "kind", kind) {
		return
	}

	var req models.TrackActionRequest
	if r.ContentLength != 0 && !utils.DecodeJSONBody(w, r, &req) {
		return
	}

	if err := engine.TrackAction(r.Context(), userID, id, kind, req.Payload); err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"id": id, "kind": kind})
}
