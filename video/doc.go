// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package video 把解码后的帧序列合成为视频文件。

# 概述

推理服务返回的是一组有序 JPEG 帧，本包负责按指定帧率把它们写成单个
视频文件，并返回描述产物的 Artifact。帧顺序严格等于序列顺序。

# 核心接口

  - Assembler — 合成器抽象，Assemble(ctx, seq, fps, outPath)
  - Artifact  — 产物描述：路径、格式、帧数、帧率、时长、尺寸、大小

# 实现

  - FFmpegAssembler — 调用 ffmpeg（libx264, crf 20, preset slower,
    movflags faststart, yuv420p）输出 MP4，依赖外部可执行文件
  - MJPEGAssembler  — 纯 Go 写出 Motion-JPEG AVI，无外部依赖，
    相同输入产出字节一致的文件

# 失败约定

  - 空序列立即返回 ErrNoFrames，不创建任何输出文件
  - fps <= 0 返回 INVALID_REQUEST
  - 编码过程失败返回 ASSEMBLY_FAILED，并删除不完整的输出
*/
package video
