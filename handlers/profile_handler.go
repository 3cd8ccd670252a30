package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"thought_engine/models"
	"thought_engine/services"
	"thought_engine/utils"
)

// BuildProfileHandler godoc
// @Summary 重建用户画像
// @Description 读取用户全部条目重新构建兴趣画像，完成后整体替换旧画像
// @Tags 用户画像
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Success 200 {object} models.APIResponse{data=models.UserProfile} "成功"
// @Failure 400 {object} models.APIResponse "业务错误，见 code"
// @Router /api/profile/{userID}/build [post]
func BuildProfileHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID := chi.URLParam(r, "userID")
	if !utils.ValidateParam(w, "userID", userID) {
		return
	}

	profile, err := engine.BuildProfile(r.Context(), userID)
	if err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, profile)
}

// GetProfileHandler godoc
// @Summary 获取用户画像
// @Description 返回当前画像，不触发重建
// @Tags 用户画像
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Success 200 {object} models.APIResponse{data=models.UserProfile} "成功"
// @Failure 400 {object} models.APIResponse "用户没有画像"
// @Router /api/profile/{userID} [get]
func GetProfileHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID := chi.URLParam(r, "userID")
	if !utils.ValidateParam(w, "userID", userID) {
		return
	}

	profile, err := engine.Profile(r.Context(), userID)
	if err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	if profile == nil {
		utils.WriteErrorResponse(w, models.CodeNoUserProfile, map[string]interface{}{
			"user_id": userID,
		})
		return
	}
	utils.WriteSuccessResponse(w, profile)
}

// GetProgressionHandler godoc
// @Summary 查询分析等级进度
// @Description 根据条目数返回当前等级、下一级以及还需要的条目数
// @Tags 分级分析
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Success 200 {object} models.APIResponse{data=models.Progression} "成功"
// @Router /api/progression/{userID} [get]
func GetProgressionHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID := chi.URLParam(r, "userID")
	if !utils.ValidateParam(w, "userID", userID) {
		return
	}

	progression, err := engine.Progression(r.Context(), userID)
	if err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, progression)
}

// AnalyzeEntryHandler godoc
// @Summary 分级分析一条条目
// @Description 按用户当前等级生成分析并保存到本地洞察库；生成失败时返回可重试错误，不写入任何数据
// @Tags 分级分析
// @Accept json
// @Produce json
// @Param userID path string true "用户ID"
// @Param entryID path string true "条目ID"
// @Success 200 {object} models.APIResponse{data=models.Insight} "成功"
// @Failure 400 {object} models.APIResponse "业务错误，data.retryable 表示是否可重试"
// @Router /api/insights/{userID}/analyze/{entryID} [post]
func AnalyzeEntryHandler(w http.ResponseWriter, r *http.Request, engine *services.Engine) {
	userID := chi.URLParam(r, "userID")
	entryID := chi.URLParam(r, "entryID")
	if !utils.ValidateParam(w, "userID", userID) || !utils.ValidateParam(w, "entryID", entryID) {
		return
	}

	insight, err := engine.Analyze(r.Context(), userID, entryID)
	if err != nil {
		utils.HandleServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, insight)
}
