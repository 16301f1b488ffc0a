package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"lesson_engine_backend/internal/assessment"
	"lesson_engine_backend/internal/model"
	"lesson_engine_backend/internal/service"
	"lesson_engine_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

type LessonController struct {
	LessonService  *service.LessonService
	AttemptService *service.LessonAttemptService
}

func NewLessonController(lessonService *service.LessonService, attemptService *service.LessonAttemptService) *LessonController {
	return &LessonController{LessonService: lessonService, AttemptService: attemptService}
}

func lessonID(ctx *gin.Context) (uint, bool) {
	id, err := util.ParseID(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid lesson id")
		return 0, false
	}
	return id, true
}

func (c *LessonController) handleError(ctx *gin.Context, err error) {
	var denied *service.AttemptDeniedError
	switch {
	case errors.As(err, &denied):
		data := service.PermissionResult{Decision: denied.Decision}
		if denied.Decision.Reason == assessment.ReasonCooldown {
			data.RemainingText = util.FormatRemaining(denied.Decision.RemainingTime)
		}
		util.ErrorWithData(ctx, http.StatusForbidden, err.Error(), data)
	case errors.Is(err, util.ErrLessonNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrEmptySubmission):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrNoActiveAttempt):
		util.Error(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, assessment.ErrInvalidLesson):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// @Summary 获取课程信息
// @Description 学生可见的课程信息，不包含题目和答案
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=service.LessonSummary}
// @Failure 404 {object} util.Response
// @Router /api/lessons/{id} [get]
func (c *LessonController) GetLesson(ctx *gin.Context) {
	id, ok := lessonID(ctx)
	if !ok {
		return
	}
	lesson, err := c.LessonService.Get(ctx.Request.Context(), id)
	if err != nil {
		c.handleError(ctx, err)
		return
	}
	util.Success(ctx, lesson)
}

// @Summary 查询作答资格
// @Description 返回是否允许开始新的作答，以及次数和冷却信息
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=service.PermissionResult}
// @Router /api/lessons/{id}/permission [get]
func (c *LessonController) Permission(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := lessonID(ctx)
	if !ok {
		return
	}

	res, err := c.AttemptService.Permission(ctx.Request.Context(), id, user.UserID)
	if err != nil {
		c.handleError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 开始作答
// @Description 通过资格检查后返回本次作答的题目（已按课程设置抽题和打乱）
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=service.StartResult}
// @Failure 403 {object} util.Response{data=service.StartResult} "次数用尽或冷却中"
// @Router /api/lessons/{id}/attempts/start [post]
func (c *LessonController) StartAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := lessonID(ctx)
	if !ok {
		return
	}

	res, err := c.AttemptService.StartAttempt(ctx.Request.Context(), id, user.UserID)
	if err != nil {
		c.handleError(ctx, err)
		return
	}
	if !res.Allowed {
		util.ErrorWithData(ctx, http.StatusForbidden, util.ErrAttemptDenied.Error(), res)
		return
	}
	util.Success(ctx, res)
}

// SubmitAttemptRequest 答案以题目ID为键
// swagger:model SubmitAttemptRequest
type SubmitAttemptRequest struct {
	Answers          map[uint]json.RawMessage `json:"answers" swaggertype:"object"`
	TimeTakenSeconds int                      `json:"timeTakenSeconds"`
}

// @Summary 提交作答
// @Description 评分并保存作答记录，返回得分和每题结果
// @Tags 课程
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Param body body SubmitAttemptRequest true "答案"
// @Success 201 {object} util.Response{data=service.SubmitResult}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response{data=service.PermissionResult}
// @Failure 409 {object} util.Response "启用题库的课程需要先开始作答"
// @Router /api/lessons/{id}/attempts/submit [post]
func (c *LessonController) SubmitAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := lessonID(ctx)
	if !ok {
		return
	}

	var req SubmitAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.AttemptService.SubmitAttempt(ctx.Request.Context(), service.SubmitInput{
		LessonID:         id,
		StudentID:        user.UserID,
		Answers:          assessment.Submission(req.Answers),
		TimeTakenSeconds: req.TimeTakenSeconds,
	})
	if err != nil {
		c.handleError(ctx, err)
		return
	}
	util.Created(ctx, res)
}

// @Summary 作答历史
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=util.ListResponse}
// @Router /api/lessons/{id}/attempts [get]
func (c *LessonController) History(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := lessonID(ctx)
	if !ok {
		return
	}

	records, err := c.AttemptService.History(ctx.Request.Context(), id, user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.ListResponse{List: records, Total: len(records)})
}

type QuestionRequest struct {
	Type          model.QuestionType `json:"type" binding:"required"`
	Prompt        string             `json:"prompt"`
	ImageURL      string             `json:"imageUrl"`
	Options       []string           `json:"options"`
	CorrectAnswer json.RawMessage    `json:"correctAnswer" swaggertype:"object"`
	Points        float64            `json:"points"`
}

// LessonCreateRequest 题目按数组顺序保存为编写顺序
// swagger:model LessonCreateRequest
type LessonCreateRequest struct {
	Title         string                    `json:"title" binding:"required"`
	Description   string                    `json:"description"`
	Randomization model.RandomizationConfig `json:"randomization"`
	Policy        model.AttemptPolicy       `json:"policy"`
	TimeLimit     model.TimeLimit           `json:"timeLimit"`
	Questions     []QuestionRequest         `json:"questions" binding:"required,min=1,dive"`
}

func (r *LessonCreateRequest) toModel() *model.Lesson {
	lesson := &model.Lesson{
		Title:         r.Title,
		Description:   r.Description,
		Randomization: r.Randomization,
		Policy:        r.Policy,
		TimeLimit:     r.TimeLimit,
	}
	for i, q := range r.Questions {
		lesson.Questions = append(lesson.Questions, model.Question{
			Order:         i,
			Type:          q.Type,
			Prompt:        q.Prompt,
			ImageURL:      q.ImageURL,
			Options:       q.Options,
			CorrectAnswer: datatypes.JSON(q.CorrectAnswer),
			Points:        q.Points,
		})
	}
	return lesson
}

// @Summary 创建课程
// @Tags 课程管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param lesson body LessonCreateRequest true "课程信息"
// @Success 201 {object} util.Response{data=model.Lesson}
// @Failure 400 {object} util.Response
// @Router /api/teacher/lessons [post]
func (c *LessonController) CreateLesson(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req LessonCreateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	lesson := req.toModel()
	if err := c.LessonService.Create(ctx.Request.Context(), user.UserID, lesson); err != nil {
		c.handleError(ctx, err)
		return
	}
	util.Created(ctx, lesson)
}

// @Summary 我创建的课程
// @Tags 课程管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=util.ListResponse}
// @Router /api/teacher/lessons [get]
func (c *LessonController) ListLessons(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	lessons, err := c.LessonService.List(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.ListResponse{List: lessons, Total: len(lessons)})
}
